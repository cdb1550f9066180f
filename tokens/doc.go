// Package tokens provides deterministic token counting, budget math, and
// prompt-fitting utilities for conversation payloads.
//
// Counting is built on a black-box Encoder primitive: same text always
// yields the same token count. The default encoder uses the tiktoken BPE
// vocabulary; a character-based approximation (~4 characters per token) is
// used when no encoder is configured or available.
//
// The package never performs I/O at counting time, so all results are
// reproducible and safe to assert on in tests.
package tokens
