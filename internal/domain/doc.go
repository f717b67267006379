// Package domain defines the core entities of the text processing pipeline and
// the rules that govern them: which task types exist, how long a submitted text
// may be for each type, and how a task moves from processing to completed.
package domain
