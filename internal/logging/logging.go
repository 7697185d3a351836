package logging

import (
	"log"
	"os"
)

func New() *log.Logger {
	return log.New(os.Stdout, "kuma-beacon ", log.LstdFlags|log.LUTC)
}
