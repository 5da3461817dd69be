// Package runner defines the model runner contract and its backends.
//
// A Runner is a stateful adapter for one model/backend pairing. It is
// constructed unready, Init brings it up (recording a retrievable error on
// failure instead of returning one), and Unload releases it. Generation on an
// unready runner fails with a NotReady error; asking a backend for something
// it cannot do fails with a NotSupported error.
//
// Backends:
//
//   - llama.cpp-http: client for a running llama.cpp server (native
//     /completion endpoint, newline-delimited JSON streaming).
//   - llama.cpp-spawn: starts llama-server for a GGUF file, then behaves like
//     llama.cpp-http against it.
//   - llama-inprocess: go-llama.cpp binding, built with `-tags=llama`. A stub
//     that never becomes ready is compiled otherwise.
//   - synthetic: deterministic in-process echo for demos and tests; does not
//     stream.
package runner
