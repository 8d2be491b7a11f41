package proxy

import (
	"fmt"
	"strings"
)

// acmeWebroot is where the certificate challenge files are served from.
const acmeWebroot = "/var/www/steward-acme"

// Site renders the nginx server configuration for domain.
//
// With redirect disabled (Unsecured/CertPending) all routes are served over
// plain HTTP so a certificate challenge can complete on port 80. With
// redirect enabled (Secured) port 80 only answers challenges and redirects
// everything else, and the routes move to the TLS server block. The
// redirect line must never be emitted unless a certificate exists, or
// nginx refuses the configuration.
func Site(domain string, redirect bool) string {
	var b strings.Builder
	b.WriteString("# Managed by steward. Do not edit; re-run steward deploy.\n\n")

	b.WriteString("server {\n")
	b.WriteString("    listen 80;\n")
	b.WriteString("    listen [::]:80;\n")
	fmt.Fprintf(&b, "    server_name %s;\n\n", domain)
	b.WriteString("    location /.well-known/acme-challenge/ {\n")
	fmt.Fprintf(&b, "        root %s;\n", acmeWebroot)
	b.WriteString("    }\n\n")
	if redirect {
		b.WriteString("    location / {\n")
		b.WriteString("        return 301 https://$host$request_uri;\n")
		b.WriteString("    }\n")
	} else {
		writeLocations(&b)
	}
	b.WriteString("}\n")

	if redirect {
		b.WriteString("\nserver {\n")
		b.WriteString("    listen 443 ssl;\n")
		b.WriteString("    listen [::]:443 ssl;\n")
		b.WriteString("    http2 on;\n")
		fmt.Fprintf(&b, "    server_name %s;\n\n", domain)
		fmt.Fprintf(&b, "    ssl_certificate /etc/letsencrypt/live/%s/fullchain.pem;\n", domain)
		fmt.Fprintf(&b, "    ssl_certificate_key /etc/letsencrypt/live/%s/privkey.pem;\n\n", domain)
		writeLocations(&b)
		b.WriteString("}\n")
	}
	return b.String()
}

func writeLocations(b *strings.Builder) {
	for _, r := range Routes() {
		fmt.Fprintf(b, "    location %s {\n", r.Prefix)
		fmt.Fprintf(b, "        proxy_pass http://127.0.0.1:%d;\n", r.Port)
		b.WriteString("        proxy_set_header Host $host;\n")
		b.WriteString("        proxy_set_header X-Forwarded-For $proxy_add_x_forwarded_for;\n")
		b.WriteString("        proxy_set_header X-Forwarded-Proto $scheme;\n")
		b.WriteString("        proxy_http_version 1.1;\n")
		b.WriteString("        proxy_set_header Upgrade $http_upgrade;\n")
		b.WriteString("        proxy_set_header Connection \"upgrade\";\n")
		b.WriteString("    }\n")
	}
}
