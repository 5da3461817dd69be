//go:build llama

package runner

// cgo link directives for the in-process llama runtime.
// - rpath of $ORIGIN so libllama.so and libggml*.so are found next to the
//   binary in ./bin.
// - -L${SRCDIR}/../../bin so the linker finds libllama.so when building the
//   'llama' variant.
/*
#cgo LDFLAGS: -Wl,-rpath,'$ORIGIN' -L${SRCDIR}/../../bin -lllama
*/
import "C"
