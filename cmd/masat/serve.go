package masat

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/automatesecurity/masat/internal/httpapi"
)

var flagListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the portal HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := buildService()
		if err != nil {
			return err
		}
		router := httpapi.New(svc)
		log.Printf("masat api listening on %s", flagListen)
		return router.Run(flagListen)
	},
}

func init() {
	serveCmd.Flags().StringVar(&flagListen, "listen", ":5003", "listen address")
	rootCmd.AddCommand(serveCmd)
}
