// Records flags (short string labels such as "burst") against community members, so moderators can review who tripped the automated checks.
//
// In-process and redis implementations. The redis store also keeps a per-community index of flagged users.
package flagstore
