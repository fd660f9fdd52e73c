package main

import "github.com/vibast-solutions/ms-go-referral/cmd"

func main() {
	cmd.Execute()
}
