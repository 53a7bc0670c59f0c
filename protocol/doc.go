// Package protocol defines the wire types exchanged between the auction
// client and server: the handshake messages, the encrypted request/response
// envelope body, the auction and bid records, and the real-time event union
// pushed over the persistent channel.
//
// Every protected payload travels as {"data": base64(iv || ciphertext)};
// only the session identifier header and the handshake itself are cleartext.
package protocol
