package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"

	"github.com/HathorNetwork/hathor-wallet-core-go/internal/testutil"
)

func TestDefaults(t *testing.T) {
	c := Defaults()
	if c.Network.Name != "mainnet" {
		t.Fatalf("unexpected network name: %s", c.Network.Name)
	}
	if c.Wallet.GapLimit != 20 {
		t.Fatalf("expected gap limit 20, got %d", c.Wallet.GapLimit)
	}
	if c.Network.TokenDepositPct != 1 {
		t.Fatalf("expected token deposit percentage 1, got %d", c.Network.TokenDepositPct)
	}
}

func TestLoadSandbox(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox failed: %v", err)
	}
	defer sb.Cleanup()

	if err := os.Mkdir(sb.Path("config"), 0700); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}
	data := []byte("network:\n  name: testnet\n  address_byte: 73\n  p2sh_byte: 135\n" +
		"wallet:\n  gap_limit: 42\n")
	if err := sb.WriteFile("config/default.yaml", data, 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	defer os.Chdir(wd)
	viper.Reset()

	if err := os.Chdir(sb.Root); err != nil {
		t.Fatalf("chdir failed: %v", err)
	}
	if _, err := Load(""); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if AppConfig.Network.Name != "testnet" {
		t.Fatalf("expected network name testnet, got %s", AppConfig.Network.Name)
	}
	if AppConfig.Wallet.GapLimit != 42 {
		t.Fatalf("expected gap limit 42, got %d", AppConfig.Wallet.GapLimit)
	}
}

func TestLoadFromEnvMissingFile(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox failed: %v", err)
	}
	defer sb.Cleanup()

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	defer os.Chdir(wd)
	viper.Reset()

	if err := os.Chdir(sb.Root); err != nil {
		t.Fatalf("chdir failed: %v", err)
	}
	if _, err := LoadFromEnv(); err == nil {
		t.Fatalf("expected error loading config with no config/ directory present")
	}
}
