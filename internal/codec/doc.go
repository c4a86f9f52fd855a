// Package codec converts value trees to and from the binary payloads that
// cross the WebAssembly invocation boundary.
//
// Three codecs are registered:
//
//   - cbor (default): RFC 8949, order-preserving maps, lossless for every
//     value kind
//   - protobuf: google.protobuf.Value wire format; numbers travel as double
//     and map order is not kept
//   - json: compact JSON bytes, for guests that parse JSON themselves
package codec
