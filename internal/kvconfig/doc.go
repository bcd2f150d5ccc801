// Package kvconfig reads and rewrites the appliance's human-edited KEY=VALUE
// configuration file.
//
// Parsing attaches the comment lines directly above a key to that key and layers
// values from a separate defaults file underneath the persisted ones. Writing
// touches only the lines of keys being updated: comments, blank lines, ordering
// and the formatting of every other key survive a save, and keys the file did not
// know yet are appended at the end in the order they were proposed.
package kvconfig
