package main

import (
	"github.com/ilindan-dev/group-notifier/internal/app"
	"go.uber.org/fx"
)

// main applies the database migrations and exits.
func main() {
	fx.New(app.MigratorModule).Run()
}
