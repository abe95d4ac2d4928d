/*
Package moderation holds the content-safety gate and the human review
queue.

Gate evaluates the composed prompt and verse text against a fixed pattern
set; a flagged generation is rejected and never stored. Service processes
reviewer decisions: approval updates the status, rejection additionally
deletes the blob and strips the key so the bytes become unreachable.
*/
package moderation
