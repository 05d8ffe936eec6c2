package main

import "bankbot/internal/app"

func main() {
	app.Main()
}
