// Command describe prints the sorted field names of Salesforce objects typed
// on stdin, one object per line. It helps when writing the field mapping.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/natserract/sfsync/pkg/config"
	"github.com/natserract/sfsync/pkg/salesforce"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadSalesforce()
	if err != nil {
		logger.Error("Failed to load config", zap.Error(err))
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	client := salesforce.NewSalesforceWithLogger(cfg, logger)
	session, err := client.Authenticate(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to log in: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Successfully logged in as %s\n", session.UserID)

	fmt.Println("Input an object and get a list of all fields:")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		object := strings.TrimSpace(scanner.Text())
		if object == "" {
			continue
		}

		fmt.Println("--------------------------")
		desc, err := client.Describe(ctx, object)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}

		names := desc.FieldNames()
		sort.Strings(names)
		fmt.Printf("%s fields:\n", object)
		for _, name := range names {
			fmt.Printf("  %s\n", name)
		}
		fmt.Println("--------------------------")
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read input: %v\n", err)
		os.Exit(1)
	}
}
