// Package documents implements the document generation workflow.
//
// A run loads the commit and the previously generated document, then takes
// one of two branches:
//   - update: analyse the diff and rewrite the affected sections
//   - full analysis: outline and summarize the repository snapshot, then
//     write a new document section by section
//
// Both branches end in the saver, whose outputs together with the document
// title, content and summary form the artifact.
package documents
