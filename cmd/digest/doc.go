// Command digest turns Medium daily digest emails into Slack summaries.
//
// Without flags it serves the HTTP API and drains submitted runs with a
// worker pool. With -payload it processes one digest file and prints the
// run report as JSON.
//
//	digest -config config.yaml
//	digest -config config.yaml -payload digest.eml -encoding quoted-printable
package main
