package main

import (
	"taxogen/cmd/handlers"
	"taxogen/internal/logger"
)

func main() {
	logger.Init()
	handlers.Execute()
}
