package main

import (
	"flag"
	"log"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/coda-va-server/internal/kg"
)

func main() {
	var (
		dataDir = flag.String("data-dir", "data/kg", "directory holding the source reference files")
		outDir  = flag.String("out-dir", "kg", "directory to write the node/edge TSV files to")
		sources = flag.String("sources", "", "comma-separated sources to export (default: all)")
		verbose = flag.Bool("verbose", false, "enable debug logging")
	)
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	exporters := kg.AllExporters()
	if *sources != "" {
		exporters = exporters[:0]
		for _, name := range strings.Split(*sources, ",") {
			exporter, err := kg.ExporterByName(strings.TrimSpace(name))
			if err != nil {
				log.Fatalf("Unknown KG source %q (valid: icd10, icd11, who_va, phmrc, probbase, hpo)", name)
			}
			exporters = append(exporters, exporter)
		}
	}

	if err := kg.ExportAll(exporters, *dataDir, *outDir, logger); err != nil {
		logger.WithError(err).Fatal("KG export finished with errors")
	}
	logger.WithField("out_dir", *outDir).Info("KG export complete")
}
