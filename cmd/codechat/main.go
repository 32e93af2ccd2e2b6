// Command codechat is a multi-session chat with an isolated JavaScript sandbox.
//
// Usage:
//
//	codechat tui            # interactive terminal UI
//	codechat serve          # HTTP + websocket API
//	codechat run file.js    # run one snippet and print the captured output
package main

func main() {
	Execute()
}
