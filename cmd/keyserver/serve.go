package keyserver

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/mitchellh/go-wordwrap"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/earnout-labs/dealvault/pkg/build"
	"github.com/earnout-labs/dealvault/pkg/config"
	keysrv "github.com/earnout-labs/dealvault/pkg/keyserver"
	"github.com/earnout-labs/dealvault/pkg/ledger"
	"github.com/earnout-labs/dealvault/pkg/sui"
)

var log = logging.Logger("cmd/keyserver")

var trustedSigners []string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve key shares to deal participants",
	Long: wordwrap.WrapString(
		"Starts a key server holding keyserver.secret_key. A key share is released "+
			"only for a valid session certificate and signed approval request, and "+
			"only when the ledger lists the requester as a participant of the deal. "+
			"ledger.package_id must be set. Without --trusted-signer a session "+
			"certificate only covers its own address; list the backend's address to "+
			"let it retrieve documents on behalf of deal participants.",
		80),
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load[config.Config]()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		ks := cfg.KeyServer
		if ks.SecretKey == "" || ks.ObjectID == "" {
			return errors.New("keyserver.secret_key and keyserver.object_id are required, see `dealvault keyserver keygen`")
		}
		if cfg.Ledger.PackageID == "" {
			// Participant checks pass for everyone without a package.
			return errors.New("ledger.package_id is required to check deal participants")
		}
		secret, err := base64.StdEncoding.DecodeString(ks.SecretKey)
		if err != nil {
			return fmt.Errorf("decoding keyserver.secret_key: %w", err)
		}

		network, err := cfg.ToPresetConfig()
		if err != nil {
			return err
		}
		client, err := sui.NewClient(cmd.Context(), network.RPCURL.String(), sui.WithTimeout(cfg.Network.EffectiveTimeout()))
		if err != nil {
			return fmt.Errorf("creating ledger client: %w", err)
		}
		defer client.Close()
		led, err := ledger.New(client, ledger.WithPackageID(cfg.Ledger.PackageID))
		if err != nil {
			return err
		}

		opts := []keysrv.Option{
			keysrv.WithPackageID(cfg.Ledger.PackageID),
			keysrv.WithTrustedSigners(trustedSigners...),
		}
		if ks.SessionTTL > 0 {
			opts = append(opts, keysrv.WithSessionTTL(ks.SessionTTL))
		}
		srv, err := keysrv.New(ks.ObjectID, secret, led, opts...)
		if err != nil {
			return err
		}

		// print banner after short delay to ensure it only appears if no errors
		// occurred during startup
		timer := time.NewTimer(time.Second)
		defer timer.Stop()
		go func() {
			<-timer.C
			cmd.Println(banner(build.Version, ks.Port, srv.ID(), srv.PublicKey(), cfg.Ledger.PackageID, trustedSigners))
		}()

		if len(trustedSigners) == 0 {
			log.Warnw("no trusted signers, only self-certified requests will be served")
		}
		log.Infow("starting key server", "id", srv.ID(), "network", network.Name, "port", ks.Port)
		return srv.Serve(cmd.Context(), fmt.Sprintf(":%d", ks.Port))
	},
}

func init() {
	serveCmd.Flags().IntP("port", "p", 2112, "Port to run the HTTP server on")
	cobra.CheckErr(viper.BindPFlag("keyserver.port", serveCmd.Flags().Lookup("port")))

	serveCmd.Flags().String("object-id", "", "On-ledger id of this key server")
	cobra.CheckErr(viper.BindPFlag("keyserver.object_id", serveCmd.Flags().Lookup("object-id")))

	serveCmd.Flags().Duration("session-ttl", 10*time.Minute, "Longest session a certificate may claim")
	cobra.CheckErr(viper.BindPFlag("keyserver.session_ttl", serveCmd.Flags().Lookup("session-ttl")))

	serveCmd.Flags().StringSliceVar(&trustedSigners, "trusted-signer", nil, "Only accept sessions certified by these addresses (repeatable)")
}
