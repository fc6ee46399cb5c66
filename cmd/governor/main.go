package main

import (
	"fmt"
	"os"
)

// @title Agent Governance API
// @version 1.0
// @description Approval gate, quota governor, audit trail and workflow engine for autonomous agents.

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

// @security BearerAuth
func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
