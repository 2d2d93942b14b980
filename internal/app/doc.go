// Package app wires the editing core together: it loads the rule table,
// creates stores with the optional commit journal attached, and runs the
// two ways of driving gestures, replaying event scripts and serving a
// remote scene host. It is decoupled from any specific entrypoint like a
// CLI.
package app
