package cmd

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get",
	Short: "List resources",
}

var getAssetsCmd = &cobra.Command{
	Use:     "assets",
	Aliases: []string{"asset"},
	Short:   "List assets",
	RunE:    runGetAssets,
}

var getVulnerabilitiesCmd = &cobra.Command{
	Use:     "vulnerabilities",
	Aliases: []string{"vulnerability", "vulns"},
	Short:   "List vulnerabilities with their computed status",
	RunE:    runGetVulnerabilities,
}

var getExceptionsCmd = &cobra.Command{
	Use:     "exceptions",
	Aliases: []string{"exception"},
	Short:   "List active exceptions",
	RunE:    runGetExceptions,
}

var getRequestsCmd = &cobra.Command{
	Use:     "exception-requests",
	Aliases: []string{"exception-request", "requests"},
	Short:   "List exception requests",
	RunE:    runGetRequests,
}

func init() {
	// assets flags
	getAssetsCmd.Flags().String("hostname", "", "Filter by hostname substring")
	getAssetsCmd.Flags().String("owner", "", "Filter by owner")
	getAssetsCmd.Flags().String("host-group", "", "Filter by host group")
	getAssetsCmd.Flags().String("ad-domain", "", "Filter by AD domain")
	getAssetsCmd.Flags().Int("page", 1, "Page number")
	getAssetsCmd.Flags().Int("per-page", 20, "Items per page")

	// vulnerabilities flags
	getVulnerabilitiesCmd.Flags().String("asset-id", "", "Filter by asset ID")
	getVulnerabilitiesCmd.Flags().String("cve", "", "Filter by CVE identifier")
	getVulnerabilitiesCmd.Flags().String("severity", "", "Filter by severity (critical, high, medium, low)")
	getVulnerabilitiesCmd.Flags().String("min-severity", "", "Filter by minimum severity")
	getVulnerabilitiesCmd.Flags().String("status", "", "Filter by status (OK, OVERDUE, EXCEPTED)")
	getVulnerabilitiesCmd.Flags().Int("page", 1, "Page number")
	getVulnerabilitiesCmd.Flags().Int("per-page", 20, "Items per page")

	// exceptions flags
	getExceptionsCmd.Flags().Int("page", 1, "Page number")
	getExceptionsCmd.Flags().Int("per-page", 20, "Items per page")

	// exception-requests flags
	getRequestsCmd.Flags().String("status", "", "Filter by status (pending, approved, rejected, expired, cancelled)")
	getRequestsCmd.Flags().String("scope", "", "Filter by scope (single_vulnerability, cve_pattern)")
	getRequestsCmd.Flags().String("cve", "", "Filter by CVE identifier")
	getRequestsCmd.Flags().Bool("pending", false, "Show only the approval queue, oldest first")
	getRequestsCmd.Flags().Int("page", 1, "Page number")
	getRequestsCmd.Flags().Int("per-page", 20, "Items per page")

	getCmd.AddCommand(getAssetsCmd)
	getCmd.AddCommand(getVulnerabilitiesCmd)
	getCmd.AddCommand(getExceptionsCmd)
	getCmd.AddCommand(getRequestsCmd)
}

func pageParams(cmd *cobra.Command, params url.Values) {
	if v, _ := cmd.Flags().GetInt("page"); v > 0 {
		params.Set("page", strconv.Itoa(v))
	}
	if v, _ := cmd.Flags().GetInt("per-page"); v > 0 {
		params.Set("per_page", strconv.Itoa(v))
	}
}

func withQuery(path string, params url.Values) string {
	if q := params.Encode(); q != "" {
		return path + "?" + q
	}
	return path
}

func runGetAssets(cmd *cobra.Command, args []string) error {
	client := mustClient()

	params := url.Values{}
	if v, _ := cmd.Flags().GetString("hostname"); v != "" {
		params.Set("hostname", v)
	}
	if v, _ := cmd.Flags().GetString("owner"); v != "" {
		params.Set("owner", v)
	}
	if v, _ := cmd.Flags().GetString("host-group"); v != "" {
		params.Set("host_group", v)
	}
	if v, _ := cmd.Flags().GetString("ad-domain"); v != "" {
		params.Set("ad_domain", v)
	}
	pageParams(cmd, params)

	data, err := client.Get(withQuery("/api/v1/assets", params))
	if err != nil {
		return err
	}

	var resp AssetListResponse
	if err := unmarshal(data, &resp); err != nil {
		return err
	}

	switch flagOutput {
	case outputJSON:
		printJSON(resp)
	case outputYAML:
		printYAML(resp)
	case outputWide:
		t := newTable("ID", "HOSTNAME", "ROOT-DOMAIN", "LOCAL-IP", "OWNER", "OS", "LAST-SEEN")
		for _, a := range resp.Data {
			t.AddRow(a.ID, a.Hostname, orDash(a.RootDomain), orDash(a.LocalIP), orDash(a.Owner), orDash(a.OSVersion), shortTime(a.LastSeenAt))
		}
		t.Flush()
		printPagination(resp.Total, resp.Page, resp.PerPage, resp.TotalPages)
	default:
		t := newTable("ID", "HOSTNAME", "OWNER", "LAST-SEEN")
		for _, a := range resp.Data {
			t.AddRow(truncate(a.ID, 12), a.Hostname, orDash(a.Owner), shortTime(a.LastSeenAt))
		}
		t.Flush()
		printPagination(resp.Total, resp.Page, resp.PerPage, resp.TotalPages)
	}
	return nil
}

func runGetVulnerabilities(cmd *cobra.Command, args []string) error {
	client := mustClient()

	params := url.Values{}
	if v, _ := cmd.Flags().GetString("asset-id"); v != "" {
		params.Set("asset_id", v)
	}
	if v, _ := cmd.Flags().GetString("cve"); v != "" {
		params.Set("cve", v)
	}
	if v, _ := cmd.Flags().GetString("severity"); v != "" {
		params.Set("severity", v)
	}
	if v, _ := cmd.Flags().GetString("min-severity"); v != "" {
		params.Set("min_severity", v)
	}
	if v, _ := cmd.Flags().GetString("status"); v != "" {
		params.Set("status", v)
	}
	pageParams(cmd, params)

	data, err := client.Get(withQuery("/api/v1/vulnerabilities", params))
	if err != nil {
		return err
	}

	var resp VulnerabilityListResponse
	if err := unmarshal(data, &resp); err != nil {
		return err
	}

	switch flagOutput {
	case outputJSON:
		printJSON(resp)
	case outputYAML:
		printYAML(resp)
	case outputWide:
		t := newTable("ID", "CVE", "SEVERITY", "CVSS", "STATUS", "AGE", "ASSET", "DISCOVERED")
		for _, v := range resp.Data {
			t.AddRow(v.ID, v.CVEID, v.Severity, fmt.Sprintf("%.1f", v.CVSSScore), v.Status,
				strconv.Itoa(v.AgeDays), v.AssetID, shortTime(v.DiscoveredAt))
		}
		t.Flush()
		printPagination(resp.Total, resp.Page, resp.PerPage, resp.TotalPages)
	default:
		t := newTable("ID", "CVE", "SEVERITY", "STATUS", "AGE-DAYS")
		for _, v := range resp.Data {
			t.AddRow(truncate(v.ID, 12), v.CVEID, v.Severity, v.Status, strconv.Itoa(v.AgeDays))
		}
		t.Flush()
		printPagination(resp.Total, resp.Page, resp.PerPage, resp.TotalPages)
	}
	return nil
}

func runGetExceptions(cmd *cobra.Command, args []string) error {
	client := mustClient()

	params := url.Values{}
	pageParams(cmd, params)

	data, err := client.Get(withQuery("/api/v1/exceptions", params))
	if err != nil {
		return err
	}

	var resp ExceptionListResponse
	if err := unmarshal(data, &resp); err != nil {
		return err
	}

	switch flagOutput {
	case outputJSON:
		printJSON(resp)
	case outputYAML:
		printYAML(resp)
	default:
		t := newTable("ID", "SCOPE", "CVE", "ASSET", "GRANTED-BY", "EXPIRES")
		for _, e := range resp.Data {
			asset := "-"
			if e.AssetID != nil {
				asset = truncate(*e.AssetID, 12)
			}
			t.AddRow(truncate(e.ID, 12), e.Scope, e.CVEID, asset, e.GrantedBy, shortTime(e.ExpiresAt))
		}
		t.Flush()
		printPagination(resp.Total, resp.Page, resp.PerPage, resp.TotalPages)
	}
	return nil
}

func runGetRequests(cmd *cobra.Command, args []string) error {
	client := mustClient()

	path := "/api/v1/exception-requests"
	if pending, _ := cmd.Flags().GetBool("pending"); pending {
		path += "/pending"
	}

	params := url.Values{}
	if v, _ := cmd.Flags().GetString("status"); v != "" {
		params.Set("status", v)
	}
	if v, _ := cmd.Flags().GetString("scope"); v != "" {
		params.Set("scope", v)
	}
	if v, _ := cmd.Flags().GetString("cve"); v != "" {
		params.Set("cve", v)
	}
	pageParams(cmd, params)

	data, err := client.Get(withQuery(path, params))
	if err != nil {
		return err
	}

	var resp ExceptionRequestListResponse
	if err := unmarshal(data, &resp); err != nil {
		return err
	}

	switch flagOutput {
	case outputJSON:
		printJSON(resp)
	case outputYAML:
		printYAML(resp)
	case outputWide:
		t := newTable("ID", "SCOPE", "CVE", "STATUS", "REQUESTED-BY", "REQUESTED", "DECIDED-BY", "EXPIRES")
		for _, req := range resp.Data {
			t.AddRow(req.ID, req.Scope, req.CVEID, req.Status, req.RequestedBy,
				shortTime(req.RequestedAt), ptrStr(req.DecidedBy), shortTime(req.ExpiresAt))
		}
		t.Flush()
		printPagination(resp.Total, resp.Page, resp.PerPage, resp.TotalPages)
	default:
		t := newTable("ID", "SCOPE", "CVE", "STATUS", "REQUESTED-BY", "EXPIRES")
		for _, req := range resp.Data {
			t.AddRow(truncate(req.ID, 12), req.Scope, req.CVEID, req.Status, req.RequestedBy, shortTime(req.ExpiresAt))
		}
		t.Flush()
		printPagination(resp.Total, resp.Page, resp.PerPage, resp.TotalPages)
	}
	return nil
}
