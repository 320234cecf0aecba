package main

import (
	"fmt"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/defistate/cpamm-engine/protocols/cpamm/basefee"
	"github.com/defistate/cpamm-engine/protocols/cpamm/constants"
	"github.com/defistate/cpamm-engine/protocols/cpamm/types"
)

// feeView is the YAML form of a base fee schedule. Fields a mode does not use stay empty.
type feeView struct {
	Mode              string `yaml:"mode"`
	CliffFeeNumerator uint64 `yaml:"cliff_fee_numerator"`

	NumberOfPeriod              uint16 `yaml:"number_of_period,omitempty"`
	PeriodFrequency             uint64 `yaml:"period_frequency,omitempty"`
	SqrtPriceStepBps            uint32 `yaml:"sqrt_price_step_bps,omitempty"`
	SchedulerExpirationDuration uint32 `yaml:"scheduler_expiration_duration,omitempty"`
	ReductionFactor             uint64 `yaml:"reduction_factor,omitempty"`

	FeeIncrementBps    uint16 `yaml:"fee_increment_bps,omitempty"`
	MaxLimiterDuration uint32 `yaml:"max_limiter_duration,omitempty"`
	MaxFeeBps          uint32 `yaml:"max_fee_bps,omitempty"`
	ReferenceAmount    uint64 `yaml:"reference_amount,omitempty"`

	Wire    string `yaml:"wire,omitempty"`
	Runtime string `yaml:"runtime,omitempty"`
}

// encoder is implemented by every concrete schedule.
type encoder interface {
	basefee.Handler
	Parameters() basefee.Parameters
	Info() basefee.Info
}

func viewOf(h basefee.Handler) (feeView, error) {
	var v feeView
	switch s := h.(type) {
	case basefee.FeeTimeScheduler:
		v = feeView{
			Mode:              s.Mode.String(),
			CliffFeeNumerator: s.CliffFeeNumerator,
			NumberOfPeriod:    s.NumberOfPeriod,
			PeriodFrequency:   s.PeriodFrequency,
			ReductionFactor:   s.ReductionFactor,
		}
	case basefee.FeeMarketCapScheduler:
		v = feeView{
			Mode:                        s.Mode.String(),
			CliffFeeNumerator:           s.CliffFeeNumerator,
			NumberOfPeriod:              s.NumberOfPeriod,
			SqrtPriceStepBps:            s.SqrtPriceStepBps,
			SchedulerExpirationDuration: s.SchedulerExpirationDuration,
			ReductionFactor:             s.ReductionFactor,
		}
	case basefee.FeeRateLimiter:
		v = feeView{
			Mode:               types.RateLimiter.String(),
			CliffFeeNumerator:  s.CliffFeeNumerator,
			FeeIncrementBps:    s.FeeIncrementBps,
			MaxLimiterDuration: s.MaxLimiterDuration,
			MaxFeeBps:          s.MaxFeeBps,
			ReferenceAmount:    s.ReferenceAmount,
		}
	default:
		return feeView{}, fmt.Errorf("unsupported schedule %T", h)
	}
	e, ok := h.(encoder)
	if !ok {
		return feeView{}, fmt.Errorf("unsupported schedule %T", h)
	}
	wire, runtime := e.Parameters(), e.Info()
	v.Wire = hexutil.Encode(wire[:])
	v.Runtime = hexutil.Encode(runtime[:])
	return v, nil
}

func (v feeView) handler() (encoder, error) {
	mode, err := parseBaseFeeMode(v.Mode)
	if err != nil {
		return nil, err
	}
	switch mode {
	case types.FeeTimeSchedulerLinear, types.FeeTimeSchedulerExponential:
		return basefee.FeeTimeScheduler{
			CliffFeeNumerator: v.CliffFeeNumerator,
			NumberOfPeriod:    v.NumberOfPeriod,
			PeriodFrequency:   v.PeriodFrequency,
			ReductionFactor:   v.ReductionFactor,
			Mode:              mode,
		}, nil
	case types.FeeMarketCapSchedulerLinear, types.FeeMarketCapSchedulerExponential:
		return basefee.FeeMarketCapScheduler{
			CliffFeeNumerator:           v.CliffFeeNumerator,
			NumberOfPeriod:              v.NumberOfPeriod,
			SqrtPriceStepBps:            v.SqrtPriceStepBps,
			SchedulerExpirationDuration: v.SchedulerExpirationDuration,
			ReductionFactor:             v.ReductionFactor,
			Mode:                        mode,
		}, nil
	default:
		return basefee.FeeRateLimiter{
			CliffFeeNumerator:  v.CliffFeeNumerator,
			FeeIncrementBps:    v.FeeIncrementBps,
			MaxLimiterDuration: v.MaxLimiterDuration,
			MaxFeeBps:          v.MaxFeeBps,
			ReferenceAmount:    v.ReferenceAmount,
		}, nil
	}
}

func parseBaseFeeMode(s string) (types.BaseFeeMode, error) {
	for b := uint8(0); ; b++ {
		mode, ok := types.BaseFeeModeFromByte(b)
		if !ok {
			return 0, fmt.Errorf("mode: unknown base fee mode %q", s)
		}
		if mode.String() == s {
			return mode, nil
		}
	}
}

// decodeHandler accepts either layout, telling them apart by length.
func decodeHandler(text string) (basefee.Handler, error) {
	raw, err := hexutil.Decode(text)
	if err != nil {
		return nil, err
	}
	switch len(raw) {
	case basefee.ParametersSize:
		var p basefee.Parameters
		copy(p[:], raw)
		return p.Handler()
	case basefee.InfoSize:
		var i basefee.Info
		copy(i[:], raw)
		return i.Handler()
	default:
		return nil, fmt.Errorf("expected %d (wire) or %d (runtime) bytes, got %d",
			basefee.ParametersSize, basefee.InfoSize, len(raw))
	}
}

// --- decode-fee ---

func newDecodeFeeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode-fee <hex>",
		Short: "Decode a wire or runtime base fee record to YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := decodeHandler(args[0])
			if err != nil {
				return err
			}
			v, err := viewOf(h)
			if err != nil {
				return err
			}
			return writeYAML(cmd.OutOrStdout(), v)
		},
	}
}

// --- encode-fee ---

func newEncodeFeeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "encode-fee",
		Short: "Encode a YAML base fee schedule into both layouts",
		RunE:  runEncodeFee,
	}
	cmd.Flags().String("file", "-", "YAML schedule, - for stdin")
	cmd.Flags().String("collect-fee-mode", "both", "collect fee mode to validate against (both, only-b)")
	cmd.Flags().String("activation-type", "timestamp", "activation type to validate against (slot, timestamp)")
	return cmd
}

func runEncodeFee(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("file")
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return err
	}

	var in feeView
	if err := yaml.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("decode schedule: %w", err)
	}
	h, err := in.handler()
	if err != nil {
		return err
	}

	collectFeeMode := types.BothToken
	if s, _ := cmd.Flags().GetString("collect-fee-mode"); s == "only-b" {
		collectFeeMode = types.OnlyB
	}
	activationType := types.ActivationTimestamp
	if s, _ := cmd.Flags().GetString("activation-type"); s == "slot" {
		activationType = types.ActivationSlot
	}
	if err := h.Validate(collectFeeMode, activationType); err != nil {
		return err
	}

	out, err := viewOf(h)
	if err != nil {
		return err
	}
	return writeYAML(cmd.OutOrStdout(), out)
}

// --- fee-at ---

type feeAtView struct {
	FeeNumerator    uint64 `yaml:"fee_numerator"`
	FeePercent      string `yaml:"fee_percent"`
	MinFeeNumerator uint64 `yaml:"min_fee_numerator"`
	Static          bool   `yaml:"static"`
}

func newFeeAtCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fee-at <hex>",
		Short: "Evaluate a base fee record at a point in its schedule",
		Args:  cobra.ExactArgs(1),
		RunE:  runFeeAt,
	}
	cmd.Flags().Uint64("point", 0, "current slot or timestamp")
	cmd.Flags().Uint64("activation-point", 0, "pool activation slot or timestamp")
	cmd.Flags().Uint64("amount", 0, "trade amount, for the rate limiter")
	cmd.Flags().Bool("b-to-a", false, "trade sells token B")
	cmd.Flags().Bool("excluded", false, "amount is net of the fee")
	cmd.Flags().String("init-sqrt-price", "", "Q64.64 initial sqrt price, for the market cap scheduler (default 1.0)")
	cmd.Flags().String("sqrt-price", "", "Q64.64 current sqrt price, for the market cap scheduler (default 1.0)")
	return cmd
}

func runFeeAt(cmd *cobra.Command, args []string) error {
	h, err := decodeHandler(args[0])
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	point, _ := flags.GetUint64("point")
	activationPoint, _ := flags.GetUint64("activation-point")
	amount, _ := flags.GetUint64("amount")
	bToA, _ := flags.GetBool("b-to-a")
	excluded, _ := flags.GetBool("excluded")
	initStr, _ := flags.GetString("init-sqrt-price")
	currentStr, _ := flags.GetString("sqrt-price")

	initSqrtPrice, err := decimalOr(initStr, constants.OneQ64)
	if err != nil {
		return fmt.Errorf("init-sqrt-price: %w", err)
	}
	currentSqrtPrice, err := decimalOr(currentStr, constants.OneQ64)
	if err != nil {
		return fmt.Errorf("sqrt-price: %w", err)
	}

	q := basefee.FeeQuery{
		CurrentPoint:     point,
		ActivationPoint:  activationPoint,
		TradeDirection:   types.AtoB,
		Amount:           amount,
		InitSqrtPrice:    initSqrtPrice,
		CurrentSqrtPrice: currentSqrtPrice,
	}
	if bToA {
		q.TradeDirection = types.BtoA
	}

	var fee uint64
	if excluded {
		fee, err = h.FeeNumeratorFromExcludedAmount(q)
	} else {
		fee, err = h.FeeNumeratorFromIncludedAmount(q)
	}
	if err != nil {
		return err
	}
	minFee, err := h.MinFeeNumerator()
	if err != nil {
		return err
	}
	static, err := h.IsStatic(point, activationPoint)
	if err != nil {
		return err
	}

	return writeYAML(cmd.OutOrStdout(), feeAtView{
		FeeNumerator:    fee,
		FeePercent:      feePercent(fee),
		MinFeeNumerator: minFee,
		Static:          static,
	})
}

func decimalOr(s string, fallback *uint256.Int) (*uint256.Int, error) {
	if s == "" {
		return new(uint256.Int).Set(fallback), nil
	}
	return uint256.FromDecimal(s)
}

// feePercent renders a numerator over FeeDenominator with four decimals.
func feePercent(numerator uint64) string {
	scaled := numerator * 1_000_000 / constants.FeeDenominator
	return fmt.Sprintf("%d.%04d%%", scaled/10_000, scaled%10_000)
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
