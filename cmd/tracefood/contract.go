package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"tracefood/internal/core"
)

// withRuntime opens the configured store for the duration of fn.
func withRuntime(a *app, cmd *cobra.Command, fn func(*runtime) error) (err error) {
	rt, err := a.open(cmd.Context())
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, rt.Close(cmd.Context()))
	}()
	return fn(rt)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseTransitions accepts inline JSON or a file path holding either the bare
// map or {"stage_transitions": {...}}.
func parseTransitions(arg string) (core.StageRegistry, error) {
	raw := []byte(strings.TrimSpace(arg))
	if len(raw) == 0 {
		return nil, errors.New("--transitions is required")
	}
	if raw[0] != '{' {
		b, err := os.ReadFile(arg)
		if err != nil {
			return nil, fmt.Errorf("read transitions: %w", err)
		}
		raw = b
	}
	var wrapped core.InitializeRequest
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.StageTransitions != nil {
		return wrapped.StageTransitions, nil
	}
	var reg core.StageRegistry
	if err := json.Unmarshal(raw, &reg); err != nil {
		return nil, fmt.Errorf("decode transitions: %w", err)
	}
	return reg, nil
}

func newInitCmd(a *app) *cobra.Command {
	var caller, transitions string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Install the stage registry (once)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := parseTransitions(transitions)
			if err != nil {
				return err
			}
			return withRuntime(a, cmd, func(rt *runtime) error {
				if _, err := rt.svc.Initialize(cmd.Context(), caller, reg); err != nil {
					return err
				}
				pterm.Fprintln(cmd.ErrOrStderr(), pterm.Success.Sprintf("stage registry installed with %d stages", len(reg)))
				return printJSON(cmd.OutOrStdout(), reg)
			})
		},
	}
	cmd.Flags().StringVar(&caller, "as", "owner", "calling account")
	cmd.Flags().StringVarP(&transitions, "transitions", "t", "", "stage transitions as JSON or a path to a JSON file")
	_ = cmd.MarkFlagRequired("transitions")
	return cmd
}

func newMintCmd(a *app) *cobra.Command {
	var (
		caller string
		req    core.MintRequest
	)
	cmd := &cobra.Command{
		Use:   "mint <lot-id>",
		Short: "Register a harvested lot as its farmer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.LotID = args[0]
			return withRuntime(a, cmd, func(rt *runtime) error {
				lot, _, err := rt.svc.MintLot(cmd.Context(), caller, req)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), lot)
			})
		},
	}
	cmd.Flags().StringVar(&caller, "as", "", "farmer account minting the lot")
	cmd.Flags().StringVar(&req.Description, "description", "", "lot description")
	cmd.Flags().StringVar(&req.InitialMetadata.CropType, "crop", "", "crop type")
	cmd.Flags().StringVar(&req.InitialMetadata.FarmLocation, "farm", "", "farm location")
	cmd.Flags().StringSliceVar(&req.InitialMetadata.Certifications, "cert", nil, "certification (repeatable)")
	_ = cmd.MarkFlagRequired("as")
	return cmd
}

func newConfirmCmd(a *app) *cobra.Command {
	var (
		caller, stage             string
		location, notes, photoURL string
	)
	cmd := &cobra.Command{
		Use:   "confirm <lot-id>",
		Short: "Take custody of a lot at a stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := core.ConfirmRequest{LotID: args[0], StageName: stage}
			flags := cmd.Flags()
			if flags.Changed("location") || flags.Changed("notes") || flags.Changed("photo-url") {
				req.EventDetails = &core.EventDetails{}
				if flags.Changed("location") {
					req.EventDetails.Location = &location
				}
				if flags.Changed("notes") {
					req.EventDetails.Notes = &notes
				}
				if flags.Changed("photo-url") {
					req.EventDetails.PhotoURL = &photoURL
				}
			}
			var lot core.FoodLot
			err := withRuntime(a, cmd, func(rt *runtime) error {
				var err error
				lot, _, err = rt.svc.ConfirmStage(cmd.Context(), caller, req)
				if err != nil {
					return err
				}
				if lot.Terminal() {
					pterm.Fprintln(cmd.ErrOrStderr(), pterm.Info.Sprintf("lot %s completed; payout of %s queued for %s", lot.LotID, rt.svc.PayoutAmount(), lot.FarmerID))
				}
				return nil
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), lot)
		},
	}
	cmd.Flags().StringVar(&caller, "as", "", "custodian account confirming the stage")
	cmd.Flags().StringVar(&stage, "stage", "", "stage name being entered")
	cmd.Flags().StringVar(&location, "location", "", "event location")
	cmd.Flags().StringVar(&notes, "notes", "", "event notes")
	cmd.Flags().StringVar(&photoURL, "photo-url", "", "event photo URL")
	_ = cmd.MarkFlagRequired("as")
	_ = cmd.MarkFlagRequired("stage")
	return cmd
}

func newLotCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "lot <lot-id>",
		Short: "Print a lot's full custody record (null when unknown)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(a, cmd, func(rt *runtime) error {
				lot, err := rt.svc.GetLotState(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), lot)
			})
		},
	}
}

func newLotsCmd(a *app) *cobra.Command {
	var (
		pending string
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "lots",
		Short: "List lots in mint order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(a, cmd, func(rt *runtime) error {
				ctx := cmd.Context()
				var (
					ids []string
					err error
				)
				if pending != "" {
					ids, err = rt.svc.LotsPendingActor(ctx, pending)
				} else {
					ids, err = rt.svc.GetAllLotIDs(ctx)
				}
				if err != nil {
					return err
				}
				if asJSON {
					if ids == nil {
						ids = []string{}
					}
					return printJSON(cmd.OutOrStdout(), ids)
				}
				data := pterm.TableData{{"LOT", "STAGE", "NEXT ACTOR", "PAYMENT", "EVENTS"}}
				for _, id := range ids {
					lot, err := rt.svc.GetLotState(ctx, id)
					if err != nil {
						return err
					}
					if lot == nil {
						continue
					}
					next := "-"
					if lot.ExpectedNextActorID != nil {
						next = *lot.ExpectedNextActorID
					}
					data = append(data, []string{lot.LotID, lot.CurrentStage, next, string(lot.PaymentStatus), strconv.Itoa(len(lot.Events))})
				}
				out, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&pending, "pending", "", "only lots awaiting this actor")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print ids as JSON")
	return cmd
}

func newTokenCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "token <account>",
		Short: "Issue a bearer token whose subject is account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.authManager()
			if err != nil {
				return err
			}
			tok, err := m.GenerateToken(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
			return err
		},
	}
}
