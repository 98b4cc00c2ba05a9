// Package providers links every DNS backend into the binary. Importing it for
// side effects registers the backends with dnsprovider.
package providers

import (
	_ "github.com/netguru/rds-cluster-dns/internal/dnsprovider/myrasec"
	_ "github.com/netguru/rds-cluster-dns/internal/dnsprovider/route53"
)
