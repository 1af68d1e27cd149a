package runner

import (
	"github.com/projectdiscovery/cleanip/pkg/version"
	"github.com/projectdiscovery/gologger"
)

const banner = `
        __                    _
  _____/ /__  ____ _____     (_)___
 / ___/ / _ \/ __ ` + "`" + `/ __ \   / / __ \
/ /__/ /  __/ /_/ / / / /  / / /_/ /
\___/_/\___/\__,_/_/ /_/  /_/ .___/
                           /_/
`

// showBanner is used to show the banner to the user
func showBanner() {
	gologger.Print().Msgf("%s\n", banner)
	gologger.Print().Msgf("\t\t%s\n\n", version.GetVersion())
}
