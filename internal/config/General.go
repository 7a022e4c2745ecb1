package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/rs/zerolog/log"

	"github.com/elys-network/yieldhook/internal/utils"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// Bech32Prefix is the account address prefix used to parse every configured address.
	Bech32Prefix string

	// RouterAddress is the account holding pool liquidity and receipt tokens.
	RouterAddress sdk.AccAddress
	// RouterAuthority is the only account allowed to change router configuration.
	RouterAuthority sdk.AccAddress
	// LendingAddress is the lending market account granted the standing allowance.
	LendingAddress sdk.AccAddress

	// ReserveRatioBps is the share of each supported balance kept liquid.
	ReserveRatioBps uint64
	// MinDepositAmount suppresses deposits below this size. Zero disables it.
	MinDepositAmount sdkmath.Int
	// ReferralCode is forwarded with every lending deposit.
	ReferralCode uint16
	// RewardDenom is the denom the lending market pays rewards in.
	RewardDenom string

	// AdminToken authenticates admin API calls as the router authority.
	AdminToken string

	// HarvestInterval is the period between harvest cycles.
	HarvestInterval time.Duration

	// LogLevel is the zerolog level name.
	LogLevel string
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// Addresses and the admin token are required; everything else has a default.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	Bech32Prefix = getEnvOrDefault("BECH32_PREFIX", "elys")

	RouterAddress, err = getEnvAsAddress("ROUTER_ADDRESS")
	if err != nil {
		return err
	}

	RouterAuthority, err = getEnvAsAddress("ROUTER_AUTHORITY")
	if err != nil {
		return err
	}

	LendingAddress, err = getEnvAsAddress("LENDING_ADDRESS")
	if err != nil {
		return err
	}

	ReserveRatioBps, err = getEnvAsUint64OrDefault("RESERVE_RATIO_BPS", DefaultRouterParameters.ReserveRatioBps)
	if err != nil {
		return err
	}
	if ReserveRatioBps > utils.BasisPoints {
		return errors.New("environment variable RESERVE_RATIO_BPS must be at most 10000, got: " + strconv.FormatUint(ReserveRatioBps, 10))
	}

	MinDepositAmount, err = utils.ParseAmount(getEnvOrDefault("MIN_DEPOSIT_AMOUNT", "0"))
	if err != nil {
		return errors.Join(errors.New("environment variable MIN_DEPOSIT_AMOUNT is invalid"), err)
	}

	referral, err := getEnvAsUint64OrDefault("REFERRAL_CODE", 0)
	if err != nil {
		return err
	}
	if referral > 0xFFFF {
		return errors.New("environment variable REFERRAL_CODE must fit in 16 bits")
	}
	ReferralCode = uint16(referral)

	RewardDenom = getEnvOrDefault("REWARD_DENOM", DefaultRewardDenom)
	if err := sdk.ValidateDenom(RewardDenom); err != nil {
		return errors.Join(errors.New("environment variable REWARD_DENOM is invalid"), err)
	}

	AdminToken, err = getEnv("ADMIN_TOKEN")
	if err != nil {
		return err
	}

	HarvestInterval, err = time.ParseDuration(getEnvOrDefault("HARVEST_INTERVAL", DefaultHarvestInterval.String()))
	if err != nil || HarvestInterval <= 0 {
		return errors.New("environment variable HARVEST_INTERVAL must be a positive duration")
	}

	LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// Load endpoint configuration
	if err := loadEndpointConfig(); err != nil {
		return err
	}

	log.Debug().
		Str("RouterAddress", RouterAddress.String()).
		Str("RouterAuthority", RouterAuthority.String()).
		Uint64("ReserveRatioBps", ReserveRatioBps).
		Dur("HarvestInterval", HarvestInterval).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvOrDefault retrieves a string environment variable, falling back when unset.
func getEnvOrDefault(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

// getEnvAsUint64OrDefault retrieves an environment variable as a uint64, falling back when unset.
func getEnvAsUint64OrDefault(key string, fallback uint64) (uint64, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return fallback, nil
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint64, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsInt retrieves an environment variable as an int, falling back when unset.
func getEnvAsIntOrDefault(key string, fallback int) (int, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid integer, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsAddress retrieves a required bech32 account address using Bech32Prefix.
func getEnvAsAddress(key string) (sdk.AccAddress, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return nil, err
	}
	bz, err := sdk.GetFromBech32(valueStr, Bech32Prefix)
	if err != nil {
		return nil, errors.New("environment variable " + key + " must be a " + Bech32Prefix + " address, got: " + valueStr)
	}
	if err := sdk.VerifyAddressFormat(bz); err != nil {
		return nil, errors.Join(errors.New("environment variable "+key+" has an invalid address length"), err)
	}
	return sdk.AccAddress(bz), nil
}
