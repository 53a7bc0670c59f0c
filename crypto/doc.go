// Package crypto provides the cryptographic primitives for the encrypted
// auction session protocol.
//
// Two layers are implemented:
//
//   - The symmetric envelope (Seal/Open) that protects every API payload
//     after session establishment. Payloads are encrypted with AES-256-CBC
//     under the per-session key; each call draws a fresh random IV which is
//     prepended to the ciphertext, so the wire format is iv || ciphertext.
//   - RSA key transport (EncryptSessionKey/DecryptSessionKey) used exactly
//     once per session during the handshake to deliver the client-generated
//     symmetric key to the server.
//
// The envelope carries no authentication tag beyond the PKCS#7 padding
// check. A corrupted ciphertext fails loudly on unpadding in the common
// case, but the format as designed does not detect all tampering.
package crypto
