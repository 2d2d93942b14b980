// Package rules loads constraint rule tables from HCL files.
//
// A rule file declares node and edge types:
//
//	node "task" {
//	  children       = ["annotation"]
//	  converts_to    = ["user_task"]
//	  accepts_labels = ["name"]
//	  accepts_ports  = ["", "data"]
//	  dynamic_ports  = true
//	  default_size   = [100, 60]
//	  features       = { marker = "none" }
//	}
//
//	edge "sequence_flow" {
//	  from             = ["task"]
//	  to               = ["task", "end_event"]
//	  offer_reversed   = false
//	  allow_self_loop  = false
//	  preferred_source = "task"
//	  preferred_target = "task"
//	  convertible_to   = ["message_flow"]
//	}
//
// Files are discovered with doublestar globs and read in lexical path order.
// Edge declaration order across that sequence is the hint order offered to
// users, so it is part of a rule set's meaning.
package rules
