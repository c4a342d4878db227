// Package guard validates user-supplied paths and secrets before any
// processing starts.
//
// Path checks resolve inputs to clean absolute paths and, when an allowed
// root is declared, reject anything outside it. Video checks confirm the file
// exists, has a supported container extension, and is not empty. Token helpers
// mask secrets for logs and reject obviously malformed tokens.
package guard
