package replay

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"
)

// WriteReport writes the trust board, open positions and transition log.
func WriteReport(w io.Writer, res Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "scenario\t%s\n", res.Name)
	fmt.Fprintf(tw, "window\t%s .. %s (%d steps)\n", res.Start.Format(time.RFC3339), res.End.Format(time.RFC3339), res.Steps)
	fmt.Fprintf(tw, "ingested\t%d (duplicates %d, verified %d)\n", res.Ingested, res.Duplicates, res.Verified)
	fmt.Fprintf(tw, "balance\t%s (%s)\n\n", res.Balance.String(), res.Wallet)

	fmt.Fprintln(tw, "RANK\tSOURCE\tTRUST\tCORRECT\tCORRECT_INT\tINCORRECT_INT\tIMPACT\tVERIFIED\tWATERMARK")
	for _, e := range res.Board {
		fmt.Fprintf(tw, "%d\t%s\t%.4f\t%.4f\t%.4f\t%.4f\t%.4f\t%d\t%d\n",
			e.Rank, e.SourceKey, e.TrustedScore, e.Correctness, e.CorrectIntensity,
			e.IncorrectIntensity, e.Impact, e.Verified, e.LastVerifiedIndex)
	}

	fmt.Fprintln(tw, "\nTOKEN\tSTATE\tENTRY\tSIZE\tOPENED")
	for _, p := range res.Positions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.Token, p.State, p.EntryPrice.String(), p.Size.String(), p.OpenedAt.Format(time.RFC3339))
	}

	fmt.Fprintln(tw, "\nAT\tTOKEN\tFROM\tTO\tPRICE\tREASON")
	for _, t := range res.Transitions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", t.At.Format(time.RFC3339), t.Token, t.From, t.To, t.Price.String(), t.Reason)
	}
	return tw.Flush()
}
