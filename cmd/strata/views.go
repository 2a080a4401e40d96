package main

import (
	"sort"
	"strconv"

	"strata/internal/api"
)

func buildJobRows(jobs []api.Job) [][]string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		rows = append(rows, []string{
			job.JobID,
			titleStatus(job.Status),
			formatProgress(job.Progress),
			job.Username,
			strconv.Itoa(job.NumInputGranules),
			formatTimestamp(job.UpdatedAt),
			truncate(job.Message, 40),
		})
	}
	return rows
}

func buildWorkItemRows(items []api.WorkItem) [][]string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			strconv.FormatInt(item.ID, 10),
			strconv.Itoa(item.StepIndex),
			item.ServiceID,
			titleStatus(item.Status),
			strconv.Itoa(item.RetryCount),
			formatTimestamp(item.UpdatedAt),
			truncate(item.Message, 40),
		})
	}
	return rows
}

func buildLinkRows(links []api.Link) [][]string {
	rows := make([][]string, 0, len(links))
	for _, link := range links {
		rows = append(rows, []string{
			link.Href,
			link.Rel,
			link.Type,
			truncate(link.Title, 30),
		})
	}
	return rows
}

func buildJobCountRows(counts map[string]int) [][]string {
	statuses := make([]string, 0, len(counts))
	for status := range counts {
		statuses = append(statuses, status)
	}
	sort.Strings(statuses)

	rows := make([][]string, 0, len(statuses))
	for _, status := range statuses {
		rows = append(rows, []string{titleStatus(status), strconv.Itoa(counts[status])})
	}
	return rows
}
