package harvester

import _ "embed"

//go:embed README.md
var Readme string
