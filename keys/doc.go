// Package keys implements key material for layout owners and pipeline
// functionaries: generation, PEM serialization, key-id derivation, and a
// small filesystem key store.
//
// Keys are represented in the securesystemslib dictionary shape
// ({keyid, keytype, scheme, keyval}) so layouts and signatures interoperate
// with metadata produced by other toolchains.
package keys
