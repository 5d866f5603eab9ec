package main

import (
	"github.com/japanese-wolf/brain-stream/cmd/handlers"
	"github.com/japanese-wolf/brain-stream/internal/logger"
)

func main() {
	logger.Init()
	handlers.Execute()
}
