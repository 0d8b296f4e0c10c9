// Helpers for matching free-form text against blocked phrases, case-insensitively.
package keyword
