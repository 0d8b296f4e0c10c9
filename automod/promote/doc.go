// Automod component counting up/down votes on content, and republishing ("promoting") a piece of content exactly once when its up-votes reach a threshold.
//
// Votes and the promoted flag are in-process memory only.
package promote
