package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"modelrunner/internal/manager"
	"modelrunner/internal/runner"
)

type generateFlags struct {
	maxTokens   int
	temperature float64
	topK        int
	topP        float64
	seed        int64
	images      []string
	noStream    bool
	asJSON      bool
}

func newGenerateCmd(a *app) *cobra.Command {
	var f generateFlags
	cmd := &cobra.Command{
		Use:   "generate <model-id> <prompt>...",
		Short: "Run one generation against a registry model",
		Example: "  modelrunner generate local-7b \"Write a haiku about the ocean\"\n" +
			"  modelrunner generate llava-7b \"What is in this picture?\" --image cat.png",
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr := manager.New(managerConfig(a.cfg, a.log))
			defer func() { _ = mgr.Close() }()
			return runGenerate(cmd, mgr, args[0], strings.Join(args[1:], " "), f)
		},
	}
	fs := cmd.Flags()
	fs.IntVar(&f.maxTokens, "max-tokens", 0, "Maximum tokens to generate (0 = backend default)")
	fs.Float64Var(&f.temperature, "temperature", 0, "Sampling temperature (0 = backend default)")
	fs.IntVar(&f.topK, "top-k", 0, "Top-k sampling (0 = backend default)")
	fs.Float64Var(&f.topP, "top-p", 0, "Top-p sampling (0 = backend default)")
	fs.Int64Var(&f.seed, "seed", 0, "Sampling seed (0 = random)")
	fs.StringArrayVar(&f.images, "image", nil, "Image file for multimodal models; repeatable")
	fs.BoolVar(&f.noStream, "no-stream", false, "Print the text only after generation finishes")
	fs.BoolVar(&f.asJSON, "json", false, "Print the full result as JSON")
	return cmd
}

// generateResult is the --json output.
type generateResult struct {
	Model string `json:"model"`
	runner.Result
}

func runGenerate(cmd *cobra.Command, mgr *manager.Manager, id, prompt string, f generateFlags) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	rn, err := mgr.Resolve(ctx, id)
	if err != nil {
		return err
	}
	opts := runner.GenerateOptions{
		MaxTokens:   f.maxTokens,
		Temperature: f.temperature,
		TopK:        f.topK,
		TopP:        f.topP,
		Seed:        f.seed,
		Stream:      !f.noStream && !f.asJSON,
	}
	var (
		streamed bool
		onToken  runner.TokenFunc
	)
	if opts.Stream {
		onToken = func(c runner.TokenChunk) error {
			if c.Text == "" {
				return nil
			}
			streamed = true
			_, err := io.WriteString(out, c.Text)
			return err
		}
	}

	var res runner.Result
	if len(f.images) > 0 {
		var imgs []runner.ImageInput
		if imgs, err = readImages(f.images); err != nil {
			return err
		}
		res, err = rn.GenerateMultimodal(ctx, runner.MultimodalRequest{Prompt: prompt, Images: imgs, Options: opts}, onToken)
	} else {
		res, err = rn.GenerateText(ctx, runner.TextRequest{Prompt: prompt, Options: opts}, onToken)
	}
	if err != nil {
		if streamed {
			fmt.Fprintln(out)
		}
		return err
	}

	if f.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(generateResult{Model: id, Result: res})
	}
	if !streamed {
		_, _ = io.WriteString(out, res.Text)
	}
	fmt.Fprintln(out)
	if res.Partial() {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", res.Meta[runner.MetaError])
	}
	return nil
}

func readImages(paths []string) ([]runner.ImageInput, error) {
	imgs := make([]runner.ImageInput, 0, len(paths))
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read image: %w", err)
		}
		imgs = append(imgs, runner.ImageInput{Data: b, MIMEType: mime.TypeByExtension(filepath.Ext(p))})
	}
	return imgs, nil
}
