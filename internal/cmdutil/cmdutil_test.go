package cmdutil_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/earnout-labs/dealvault/internal/cmdutil"
	"github.com/earnout-labs/dealvault/pkg/documents"
	"github.com/earnout-labs/dealvault/pkg/failure"
)

func TestParseSize(t *testing.T) {
	for in, want := range map[string]uint64{
		"1024": 1024,
		"512B": 512,
		"100K": 100 << 10,
		"50m":  50 << 20,
		" 2G ": 2 << 30,
		"0":    0,
	} {
		t.Run(in, func(t *testing.T) {
			got, err := cmdutil.ParseSize(in)
			require.NoError(t, err)
			require.Equal(t, want, got)
		})
	}

	for _, in := range []string{"", "K", "12X", "-1"} {
		_, err := cmdutil.ParseSize(in)
		require.Error(t, err, in)
	}
}

func TestTranslateError(t *testing.T) {
	require.NoError(t, cmdutil.TranslateError(nil))

	denied := fmt.Errorf("%w: not a participant", documents.ErrAccessDenied)
	require.ErrorContains(t, cmdutil.TranslateError(denied), "access denied")

	cfgErr := failure.Configuration("seal.Encrypt", "no policy configured")
	translated := cmdutil.TranslateError(cfgErr)
	require.ErrorContains(t, translated, "dealvault config")
	require.True(t, failure.IsKind(translated, failure.KindConfiguration))

	handled := cmdutil.NewHandledCliError(errors.New("already shown"))
	require.Equal(t, error(handled), cmdutil.TranslateError(handled))
}
