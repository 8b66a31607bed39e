// Package mailauth contains the failure taxonomy shared by mail protocol
// clients.
//
// Failures fall into three kinds:
//
//   - ConfigError: a local precondition was not met, e.g. a mechanism was
//     requested with missing credentials. No data was exchanged.
//   - ProtocolError: the server and the client no longer agree on the state of
//     the connection. The connection must be closed and re-established.
//   - CommandError: the server rejected a single command. The connection
//     remains usable.
//
// Classify maps a server reply to exactly one of success, CommandError or
// ProtocolError.
//
// SASL mechanisms live in the sasl sub-package, an SMTP adapter driving them
// lives in the smtp sub-package.
package mailauth
