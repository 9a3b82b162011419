// Command privmsgctl operates a privmsg message store from the shell.
//
// Configuration comes from flags, PRIVMSG_* environment variables (an
// optional .env file is loaded first) and an optional config file:
//
//	privmsgctl migrate --driver postgres --dsn postgres://localhost/app
//	privmsgctl send --users alice,bob --from alice --to bob --title Hi
//	PRIVMSG_DRIVER=mongo privmsgctl inbox --user bob
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
