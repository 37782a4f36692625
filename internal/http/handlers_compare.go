package http

import (
	"github.com/gofiber/fiber/v2"

	"webmonitor/internal/compare"
)

// compareScansHandler implements POST /scans/{base}/compare/{other},
// returning the full RunComparison document (spec §3).
func compareScansHandler(c *fiber.Ctx) error {
	st := storeFromCtx(c)

	baseID, err := parseUUIDParam(c, "base")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errResp("BAD_REQUEST", "invalid base scan id"))
	}
	otherID, err := parseUUIDParam(c, "other")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errResp("BAD_REQUEST", "invalid compare scan id"))
	}

	baseScan, err := st.GetScan(c.Context(), baseID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(errResp("NOT_FOUND", "base scan not found"))
	}
	otherScan, err := st.GetScan(c.Context(), otherID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(errResp("NOT_FOUND", "compare scan not found"))
	}

	baseSnaps, err := st.ListSnapshotsForScan(c.Context(), baseID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(errResp("SNAPSHOT_LOOKUP_FAILED", err.Error()))
	}
	otherSnaps, err := st.ListSnapshotsForScan(c.Context(), otherID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(errResp("SNAPSHOT_LOOKUP_FAILED", err.Error()))
	}

	result := compare.Run(baseScan.SiteID, baseID, otherID, baseSnaps, otherSnaps, baseScan.ErrorPages, otherScan.ErrorPages)

	return c.Status(fiber.StatusOK).JSON(result)
}
