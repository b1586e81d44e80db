package main

import "rlibfactory/internal/rlibfactory"

func main() {
	rlibfactory.Main()
}
