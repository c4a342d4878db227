// Package remote removes watermarks through a hosted Replicate-compatible
// prediction API.
//
// A removal uploads the source clip through the files endpoint and creates a
// prediction referencing the returned URL. When that fails and the clip is
// small enough, a second attempt embeds the clip as a base64 data URI in the
// prediction input. The prediction is polled until it settles, then the first
// output URL is downloaded to the destination path.
//
// There are no retries beyond the two attempts and no backoff. Cancellation
// of the context stops the job at the next network boundary.
package remote
