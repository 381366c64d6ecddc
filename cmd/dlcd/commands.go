package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/dlc-network/dlcd/internal/core/domain"
	wsmessaging "github.com/dlc-network/dlcd/internal/infrastructure/messaging/websocket"
	localoracle "github.com/dlc-network/dlcd/internal/infrastructure/oracle/local"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

// flags
var (
	idFlag = &cli.StringFlag{
		Name:     "id",
		Usage:    "the contract id",
		Required: true,
	}
	counterPartyFlag = &cli.StringFlag{
		Name:     "counterparty",
		Usage:    "the name of the counterparty on the relay",
		Required: true,
	}
	localCollateralFlag = &cli.Uint64Flag{
		Name:  "local-collateral",
		Usage: "the collateral in sats funded by this node",
	}
	remoteCollateralFlag = &cli.Uint64Flag{
		Name:  "remote-collateral",
		Usage: "the collateral in sats funded by the counterparty",
	}
	feeRateFlag = &cli.Uint64Flag{
		Name:  "fee-rate",
		Usage: "the fee rate in sats/vbyte",
		Value: 2,
	}
	maturityFlag = &cli.TimestampFlag{
		Name:     "maturity",
		Usage:    "the time the oracle attests the event",
		Layout:   time.RFC3339,
		Required: true,
	}
	assetFlag = &cli.StringFlag{
		Name:     "asset",
		Usage:    "the asset id of the oracle event",
		Required: true,
	}
	outcomeFlag = &cli.StringSliceFlag{
		Name:  "outcome",
		Usage: "an enumerated outcome as <message>:<local payout>:<remote payout>",
	}
	rangeFlag = &cli.StringSliceFlag{
		Name:  "range",
		Usage: "a numeric outcome range as <start>-<end>:<local payout>:<remote payout>",
	}
	stateFlag = &cli.StringSliceFlag{
		Name:  "state",
		Usage: "filter contracts by state",
	}
	contractsCounterPartyFlag = &cli.StringFlag{
		Name:  "counterparty",
		Usage: "filter contracts by counterparty",
	}
	contractIdFlag = &cli.StringFlag{
		Name:  "id",
		Usage: "get a single contract",
	}
	portFlag = &cli.UintFlag{
		Name:  "port",
		Usage: "the listening port",
	}
	oracleKeyFlag = &cli.StringFlag{
		Name:  "key",
		Usage: "the hex encoded oracle private key, a new one is generated if missing",
	}
	numericAssetFlag = &cli.StringSliceFlag{
		Name:  "numeric",
		Usage: "a digit decomposed asset as <asset>:<base>:<number of digits>",
	}
)

// commands
var (
	offerCmd = &cli.Command{
		Name:   "offer",
		Usage:  "Offer a contract to a counterparty",
		Action: offerAction,
		Flags: []cli.Flag{
			counterPartyFlag, localCollateralFlag, remoteCollateralFlag, feeRateFlag,
			maturityFlag, assetFlag, outcomeFlag, rangeFlag,
		},
	}
	acceptCmd = &cli.Command{
		Name:   "accept",
		Usage:  "Accept a received contract offer",
		Action: acceptAction,
		Flags:  []cli.Flag{idFlag},
	}
	rejectCmd = &cli.Command{
		Name:   "reject",
		Usage:  "Reject a received contract offer",
		Action: rejectAction,
		Flags:  []cli.Flag{idFlag},
	}
	contractsCmd = &cli.Command{
		Name:   "contracts",
		Usage:  "List the contracts of the daemon",
		Action: contractsAction,
		Flags:  []cli.Flag{contractIdFlag, stateFlag, contractsCounterPartyFlag},
	}
	relayCmd = &cli.Command{
		Name:   "relay",
		Usage:  "Run a message relay for dlcd peers",
		Action: relayAction,
		Flags:  []cli.Flag{portFlag},
	}
	oracleCmd = &cli.Command{
		Name:   "oracle",
		Usage:  "Run a test oracle attesting events on demand",
		Action: oracleAction,
		Flags:  []cli.Flag{portFlag, oracleKeyFlag, numericAssetFlag},
	}
)

func offerAction(ctx *cli.Context) error {
	outcomes, err := parseOutcomes(ctx.StringSlice("outcome"))
	if err != nil {
		return err
	}
	ranges, err := parseRanges(ctx.StringSlice("range"))
	if err != nil {
		return err
	}

	terms := domain.ContractTerms{
		CounterPartyName: ctx.String("counterparty"),
		LocalCollateral:  ctx.Uint64("local-collateral"),
		RemoteCollateral: ctx.Uint64("remote-collateral"),
		FeeRate:          ctx.Uint64("fee-rate"),
		MaturityTime:     ctx.Timestamp("maturity").Unix(),
		AssetId:          ctx.String("asset"),
		Outcomes:         outcomes,
		Ranges:           ranges,
	}
	if err := terms.Validate(); err != nil {
		return err
	}
	body, err := json.Marshal(terms)
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/v1/contracts", ctx.String("url"))
	contract, err := post[map[string]interface{}](endpoint, body)
	if err != nil {
		return err
	}
	return printJSON(contract)
}

func acceptAction(ctx *cli.Context) error {
	endpoint := fmt.Sprintf(
		"%s/v1/contracts/%s/accept", ctx.String("url"), url.PathEscape(ctx.String("id")),
	)
	contract, err := post[map[string]interface{}](endpoint, nil)
	if err != nil {
		return err
	}
	return printJSON(contract)
}

func rejectAction(ctx *cli.Context) error {
	endpoint := fmt.Sprintf(
		"%s/v1/contracts/%s/reject", ctx.String("url"), url.PathEscape(ctx.String("id")),
	)
	contract, err := post[map[string]interface{}](endpoint, nil)
	if err != nil {
		return err
	}
	return printJSON(contract)
}

func contractsAction(ctx *cli.Context) error {
	baseURL := ctx.String("url")
	if id := ctx.String("id"); id != "" {
		endpoint := fmt.Sprintf("%s/v1/contracts/%s", baseURL, url.PathEscape(id))
		contract, err := get[map[string]interface{}](endpoint)
		if err != nil {
			return err
		}
		return printJSON(contract)
	}

	query := url.Values{}
	for _, state := range ctx.StringSlice("state") {
		query.Add("state", state)
	}
	if counterParty := ctx.String("counterparty"); counterParty != "" {
		query.Set("counterparty", counterParty)
	}
	endpoint := fmt.Sprintf("%s/v1/contracts", baseURL)
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	contracts, err := get[map[string]interface{}](endpoint)
	if err != nil {
		return err
	}
	return printJSON(contracts["contracts"])
}

func relayAction(ctx *cli.Context) error {
	port := ctx.Uint("port")
	if port == 0 {
		port = 7373
	}
	relay := wsmessaging.NewRelay()
	return serve(port, relay.Handler(), "relay")
}

func oracleAction(ctx *cli.Context) error {
	key, err := parseOracleKey(ctx.String("key"))
	if err != nil {
		return err
	}
	oracle := localoracle.NewOracle("dlcd-oracle", key)
	for _, asset := range ctx.StringSlice("numeric") {
		assetId, base, nbDigits, err := parseNumericAsset(asset)
		if err != nil {
			return err
		}
		if err := oracle.RegisterNumericAsset(assetId, base, nbDigits); err != nil {
			return err
		}
	}
	log.Infof("oracle public key: %s", oracle.PublicKey())

	port := ctx.Uint("port")
	if port == 0 {
		port = 7272
	}
	return serve(port, localoracle.NewHandler(oracle), "oracle")
}

// serve runs handler until the process gets a termination signal.
func serve(port uint, handler http.Handler, name string) error {
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: handler,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	log.Infof("%s listening at %s", name, server.Addr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT, os.Interrupt)
	select {
	case err := <-errCh:
		return err
	case <-sigChan:
	}

	log.Infof("shutting down %s...", name)
	return server.Close()
}

func parseOutcomes(values []string) ([]domain.Outcome, error) {
	outcomes := make([]domain.Outcome, 0, len(values))
	for _, v := range values {
		parts := strings.Split(v, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid outcome %s", v)
		}
		localPayout, remotePayout, err := parsePayouts(parts[1], parts[2])
		if err != nil {
			return nil, fmt.Errorf("invalid outcome %s: %s", v, err)
		}
		outcomes = append(outcomes, domain.Outcome{
			Message:      parts[0],
			LocalPayout:  localPayout,
			RemotePayout: remotePayout,
		})
	}
	return outcomes, nil
}

func parseRanges(values []string) ([]domain.RangeOutcome, error) {
	ranges := make([]domain.RangeOutcome, 0, len(values))
	for _, v := range values {
		parts := strings.Split(v, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid range %s", v)
		}
		bounds := strings.Split(parts[0], "-")
		if len(bounds) != 2 {
			return nil, fmt.Errorf("invalid range bounds %s", parts[0])
		}
		start, err := strconv.ParseUint(bounds[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid range start %s", bounds[0])
		}
		end, err := strconv.ParseUint(bounds[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid range end %s", bounds[1])
		}
		localPayout, remotePayout, err := parsePayouts(parts[1], parts[2])
		if err != nil {
			return nil, fmt.Errorf("invalid range %s: %s", v, err)
		}
		ranges = append(ranges, domain.RangeOutcome{
			Start:        start,
			End:          end,
			LocalPayout:  localPayout,
			RemotePayout: remotePayout,
		})
	}
	return ranges, nil
}

func parsePayouts(local, remote string) (uint64, uint64, error) {
	localPayout, err := strconv.ParseUint(local, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid local payout %s", local)
	}
	remotePayout, err := strconv.ParseUint(remote, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid remote payout %s", remote)
	}
	return localPayout, remotePayout, nil
}

func parseNumericAsset(value string) (string, int, int, error) {
	parts := strings.Split(value, ":")
	if len(parts) != 3 {
		return "", 0, 0, fmt.Errorf("invalid numeric asset %s", value)
	}
	base, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, 0, fmt.Errorf("invalid base %s", parts[1])
	}
	nbDigits, err := strconv.Atoi(parts[2])
	if err != nil {
		return "", 0, 0, fmt.Errorf("invalid number of digits %s", parts[2])
	}
	return parts[0], base, nbDigits, nil
}

func parseOracleKey(value string) (*btcec.PrivateKey, error) {
	if value == "" {
		return btcec.NewPrivateKey()
	}
	buf, err := hex.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("invalid oracle key: %s", err)
	}
	key, _ := btcec.PrivKeyFromBytes(buf)
	return key, nil
}

func post[T any](url string, body []byte) (result T, err error) {
	req, err := http.NewRequest("POST", url, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Add("Content-Type", "application/json")
	return do[T](req)
}

func get[T any](url string) (result T, err error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return
	}
	req.Header.Add("Content-Type", "application/json")
	return do[T](req)
}

func do[T any](req *http.Request) (result T, err error) {
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return
	}
	defer resp.Body.Close()

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return
	}
	if resp.StatusCode != http.StatusOK {
		err = fmt.Errorf("request failed (%d): %s", resp.StatusCode, string(buf))
		return
	}
	err = json.Unmarshal(buf, &result)
	return
}

func printJSON(v interface{}) error {
	buf, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(buf))
	return nil
}
