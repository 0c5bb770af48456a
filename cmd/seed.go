package cmd

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/MonilMehta/fyp/internal/config"
	"github.com/MonilMehta/fyp/internal/db"
	"github.com/MonilMehta/fyp/internal/fingerprint"
	"github.com/MonilMehta/fyp/internal/tracking"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with realistic demo scenarios",
	Long: `Seeds three demo scenarios through the real correlation store:
a targeted pitch-deck readership, a leaked memo spreading virally, and
a proposal opened by a single corporate reviewer.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		database, err := db.Open(filepath.Join(cfg.DataDir, "doctrace.db"))
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer database.Close()

		store := tracking.NewStore(database, time.Duration(cfg.SessionWindowMinutes)*time.Minute)
		return runSeed(cmd.Context(), store)
	},
}

// seedOrigin is one synthetic network location.
type seedOrigin struct {
	ip      string
	city    string
	country string
	isp     string
	asn     string
}

// seedClient is one synthetic client profile.
type seedClient struct {
	userAgent string
	clientApp string
	osName    string
}

var pitchOrigins = []seedOrigin{
	{"98.42.17.5", "San Francisco", "United States", "Comcast Cable", "AS7922"},
	{"71.190.3.88", "New York", "United States", "Verizon Fios", "AS701"},
	{"81.132.44.10", "London", "United Kingdom", "British Telecommunications", "AS2856"},
	{"121.6.200.31", "Singapore", "Singapore", "Singtel", "AS7473"},
}

var pitchClients = []seedClient{
	{"Microsoft Office/16.0 (Windows NT 10.0; Word 16.0.14326; Pro)", "Microsoft Word", "Windows"},
	{"Mozilla/5.0 (Macintosh; Intel Mac OS X 13_2) Word/16.70", "Microsoft Word", "macOS"},
	{"Mozilla/5.0 (Macintosh; Intel Mac OS X 13_2) AppleWebKit/537.36 Chrome/120.0.0.0 Safari/537.36", "unknown", "macOS"},
	{"Mozilla/5.0 (iPhone; CPU iPhone OS 17_2 like Mac OS X) AppleWebKit/605.1.15 Version/17.2 Safari/604.1", "unknown", "iOS"},
}

var memoCountries = []struct {
	country string
	isp     string
}{
	{"United States", "Verizon"},
	{"United Kingdom", "BT"},
	{"Germany", "Deutsche Telekom"},
	{"India", "Jio"},
	{"Japan", "Softbank"},
	{"Brazil", "Vivo"},
}

// runSeed writes every scenario through Store.RecordEvent so session
// windows and first-access flags are computed by the real code path.
func runSeed(ctx context.Context, store *tracking.Store) error {
	const total = 45 + 120 + 8
	bar := progressbar.Default(total, "seeding")

	if err := seedPitchDeck(ctx, store, bar); err != nil {
		return err
	}
	if err := seedLeakedMemo(ctx, store, bar); err != nil {
		return err
	}
	if err := seedProposal(ctx, store, bar); err != nil {
		return err
	}

	fmt.Println("\nSeed complete.")
	return nil
}

// seedPitchDeck simulates targeted access from VC hubs, skewed toward
// business hours.
func seedPitchDeck(ctx context.Context, store *tracking.Store, bar *progressbar.ProgressBar) error {
	cid := "pitch-" + uuid.New().String()[:8]
	doc, err := store.UpsertDocument(ctx, cid, "Series A Pitch Deck (Confidential)", "",
		map[string]string{"type": "presentation", "version": "v3.1"})
	if err != nil {
		return fmt.Errorf("seeding pitch deck document: %w", err)
	}

	base := time.Now().UTC().Add(-7 * 24 * time.Hour)
	for i := 0; i < 45; i++ {
		origin := pitchOrigins[rand.Intn(len(pitchOrigins))]
		client := pitchClients[rand.Intn(len(pitchClients))]
		occurred := base.
			Add(time.Duration(rand.Intn(7)) * 24 * time.Hour).
			Add(time.Duration(9+rand.Intn(9)) * time.Hour).
			Add(time.Duration(rand.Intn(60)) * time.Minute)

		if err := seedEvent(ctx, store, doc, origin, client, occurred, tracking.CategoryAsset); err != nil {
			return err
		}
		bar.Add(1)
	}
	return nil
}

// seedLeakedMemo simulates viral spread: diverse origins, mobile-heavy
// clients, exponentially accelerating access times.
func seedLeakedMemo(ctx context.Context, store *tracking.Store, bar *progressbar.ProgressBar) error {
	cid := "memo-" + uuid.New().String()[:8]
	doc, err := store.UpsertDocument(ctx, cid, "Internal Memo: 2026 Strategy", "",
		map[string]string{"type": "pdf", "sensitivity": "high"})
	if err != nil {
		return fmt.Errorf("seeding memo document: %w", err)
	}

	base := time.Now().UTC().Add(-2 * 24 * time.Hour)
	now := time.Now().UTC()

	for i := 0; i < 120; i++ {
		occurred := base.Add(time.Duration(math.Pow(float64(i), 1.5)) * time.Minute)
		if occurred.After(now) {
			bar.Add(120 - i)
			break
		}

		cd := memoCountries[rand.Intn(len(memoCountries))]
		origin := seedOrigin{
			ip:      fmt.Sprintf("%d.%d.%d.%d", 1+rand.Intn(220), rand.Intn(255), rand.Intn(255), 1+rand.Intn(254)),
			country: cd.country,
			isp:     cd.isp,
			asn:     "AS0000",
		}
		client := seedClient{
			userAgent: "Mozilla/5.0 (Linux; Android 14) AppleWebKit/537.36 Chrome/120.0.0.0 Mobile Safari/537.36",
			clientApp: "unknown",
			osName:    "Android",
		}

		category := tracking.CategoryAsset
		if i%3 == 0 {
			category = tracking.CategoryFont
		}
		if err := seedEvent(ctx, store, doc, origin, client, occurred, category); err != nil {
			return err
		}
		bar.Add(1)
	}
	return nil
}

// seedProposal simulates a single corporate reviewer opening a
// proposal a few times over two sessions.
func seedProposal(ctx context.Context, store *tracking.Store, bar *progressbar.ProgressBar) error {
	cid := "proposal-" + uuid.New().String()[:8]
	doc, err := store.UpsertDocument(ctx, cid, "Enterprise Proposal Q3", "",
		map[string]string{"type": "docx"})
	if err != nil {
		return fmt.Errorf("seeding proposal document: %w", err)
	}

	origin := seedOrigin{"194.83.56.20", "Cambridge", "United Kingdom", "Jisc Services", "AS786"}
	client := pitchClients[0]
	base := time.Now().UTC().Add(-24 * time.Hour)

	// First session: four reads a few minutes apart; second session the
	// next morning.
	offsets := []time.Duration{
		0, 4 * time.Minute, 9 * time.Minute, 22 * time.Minute,
		14 * time.Hour, 14*time.Hour + 6*time.Minute, 14*time.Hour + 11*time.Minute, 14*time.Hour + 35*time.Minute,
	}
	for _, off := range offsets {
		if err := seedEvent(ctx, store, doc, origin, client, base.Add(off), tracking.CategoryConfig); err != nil {
			return err
		}
		bar.Add(1)
	}
	return nil
}

func seedEvent(ctx context.Context, store *tracking.Store, doc *tracking.Document,
	origin seedOrigin, client seedClient, occurred time.Time, category tracking.EndpointCategory) error {

	headers := http.Header{}
	headers.Set("User-Agent", client.userAgent)

	fp := fingerprint.ParseUserAgent(client.userAgent)
	_, err := store.RecordEvent(ctx, tracking.Event{
		DocumentID:     doc.ID,
		CID:            doc.CID,
		IdentityKey:    fingerprint.IdentityKey(origin.ip, fp),
		Category:       category,
		Method:         "GET",
		Path:           "/assets/media/logo-light.png",
		QueryParams:    []tracking.QueryParam{{Key: "cid", Value: doc.CID}, {Key: "v", Value: "2.4.1"}},
		Headers:        headers,
		IPAddress:      origin.ip,
		UserAgent:      client.userAgent,
		OSName:         fp.OSName,
		OSVersion:      fp.OSVersion,
		BrowserName:    fp.BrowserName,
		BrowserVersion: fp.BrowserVersion,
		ClientApp:      fp.ClientApp,
		Country:        origin.country,
		City:           origin.city,
		ASN:            origin.asn,
		ISP:            origin.isp,
		OccurredAt:     occurred,
	})
	if err != nil {
		return fmt.Errorf("seeding event: %w", err)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
