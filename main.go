package main

import (
	"fmt"

	"github.com/signalmesh/notify-relay-service/cmd"
)

func main() {
	if err := cmd.Run(); err != nil {
		fmt.Println(err.Error())
		return
	}
}
