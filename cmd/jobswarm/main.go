package main

import app "jobswarm/internal/app"

func main() {
	app.Run()
}
