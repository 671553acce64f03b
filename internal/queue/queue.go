package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis keys backing the durable queue. A single sorted set holds both
// waiting and delayed jobs: a member with a score in the future is delayed,
// one with a score at or before now is ready.
const (
	waitingKey   = "mail_jobs:waiting"
	activeKey    = "mail_jobs:active"
	completedKey = "mail_jobs:completed"
	failedKey    = "mail_jobs:failed"
	pausedKey    = "mail_jobs:paused"
)

// Queue is the Redis-backed durable job queue shared by the dispatcher,
// the worker pool and the health monitor. It is an injected handle, not a
// process-global.
type Queue struct {
	client *redis.Client
	logger *slog.Logger
}

func New(client *redis.Client, logger *slog.Logger) *Queue {
	return &Queue{client: client, logger: logger}
}

// Enqueue adds jobs to the waiting set in one pipeline. Each job's score is
// its NotBefore time, so delayed batches surface only when due.
func (q *Queue) Enqueue(ctx context.Context, jobs []Job) error {
	if len(jobs) == 0 {
		return nil
	}

	pipe := q.client.Pipeline()
	for i := range jobs {
		data, err := json.Marshal(&jobs[i])
		if err != nil {
			return fmt.Errorf("marshaling job %s: %w", jobs[i].ID, err)
		}
		pipe.ZAdd(ctx, waitingKey, redis.Z{
			Score:  float64(jobs[i].NotBefore.UnixMicro()),
			Member: string(data),
		})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("enqueuing jobs: %w", err)
	}
	return nil
}

// PopReady claims up to n ready jobs and moves them to the active set.
// Jobs belonging to paused campaigns are left in place. A job is claimed by
// removing it from the waiting set: if ZRem returns 0 another instance got
// there first and the job is skipped.
func (q *Queue) PopReady(ctx context.Context, n int64) ([]Job, error) {
	now := time.Now()

	results, err := q.client.ZRangeByScoreWithScores(ctx, waitingKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   formatScore(float64(now.UnixMicro())),
		Count: n,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("polling waiting set: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	type candidate struct {
		member string
		score  float64
		job    Job
	}

	paused := map[string]bool{}
	var ready []candidate
	for _, z := range results {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		var job Job
		if err := json.Unmarshal([]byte(member), &job); err != nil {
			// Poisoned member: drop it so it cannot wedge the queue.
			q.client.ZRem(ctx, waitingKey, member)
			q.logger.Error("dropping unreadable job", "error", err)
			continue
		}

		isPaused, known := paused[job.CampaignID]
		if !known {
			isPaused, err = q.client.SIsMember(ctx, pausedKey, job.CampaignID).Result()
			if err != nil {
				return nil, fmt.Errorf("checking pause flag: %w", err)
			}
			paused[job.CampaignID] = isPaused
		}
		if isPaused {
			continue
		}

		job.raw = member
		ready = append(ready, candidate{member: member, score: z.Score, job: job})
	}

	// Greedy priority among jobs that are equally ready.
	sort.SliceStable(ready, func(i, j int) bool {
		if ready[i].job.Priority != ready[j].job.Priority {
			return ready[i].job.Priority > ready[j].job.Priority
		}
		return ready[i].score < ready[j].score
	})

	var claimed []Job
	for _, c := range ready {
		removed, err := q.client.ZRem(ctx, waitingKey, c.member).Result()
		if err != nil {
			return claimed, fmt.Errorf("claiming job: %w", err)
		}
		if removed == 0 {
			continue
		}
		if err := q.client.ZAdd(ctx, activeKey, redis.Z{
			Score:  float64(now.UnixMicro()),
			Member: c.member,
		}).Err(); err != nil {
			return claimed, fmt.Errorf("marking job active: %w", err)
		}
		claimed = append(claimed, c.job)
	}
	return claimed, nil
}

// Complete moves a job from the active set to the completed set.
func (q *Queue) Complete(ctx context.Context, job Job) error {
	return q.finish(ctx, job, completedKey)
}

// Fail moves a job from the active set to the failed set.
func (q *Queue) Fail(ctx context.Context, job Job) error {
	return q.finish(ctx, job, failedKey)
}

func (q *Queue) finish(ctx context.Context, job Job, destKey string) error {
	member := job.raw
	if member == "" {
		data, err := json.Marshal(&job)
		if err != nil {
			return fmt.Errorf("marshaling job %s: %w", job.ID, err)
		}
		member = string(data)
	}

	pipe := q.client.Pipeline()
	pipe.ZRem(ctx, activeKey, member)
	pipe.ZAdd(ctx, destKey, redis.Z{
		Score:  float64(time.Now().UnixMicro()),
		Member: member,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("finishing job %s: %w", job.ID, err)
	}
	return nil
}

// Retry removes the job's current incarnation from the active set and
// re-enqueues it with the attempt counter already incremented by the caller
// and a NotBefore pushed out by delay.
func (q *Queue) Retry(ctx context.Context, job Job, delay time.Duration) error {
	old := job.raw
	job.NotBefore = time.Now().Add(delay)
	job.raw = ""

	data, err := json.Marshal(&job)
	if err != nil {
		return fmt.Errorf("marshaling retry of job %s: %w", job.ID, err)
	}

	pipe := q.client.Pipeline()
	if old != "" {
		pipe.ZRem(ctx, activeKey, old)
	}
	pipe.ZAdd(ctx, waitingKey, redis.Z{
		Score:  float64(job.NotBefore.UnixMicro()),
		Member: string(data),
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("re-enqueuing job %s: %w", job.ID, err)
	}
	return nil
}

// RemoveByCampaign deletes every waiting or delayed job of the campaign and
// returns the removed jobs. Active jobs are untouched: an executing send
// cannot be undone, so it is allowed to finish.
func (q *Queue) RemoveByCampaign(ctx context.Context, campaignID string) ([]Job, error) {
	var removed []Job
	var cursor uint64

	for {
		members, next, err := q.client.ZScan(ctx, waitingKey, cursor, "*"+campaignID+"*", 200).Result()
		if err != nil {
			return removed, fmt.Errorf("scanning waiting set: %w", err)
		}

		// ZScan returns member, score pairs.
		for i := 0; i+1 < len(members); i += 2 {
			member := members[i]
			var job Job
			if err := json.Unmarshal([]byte(member), &job); err != nil {
				continue
			}
			if job.CampaignID != campaignID {
				continue
			}
			n, err := q.client.ZRem(ctx, waitingKey, member).Result()
			if err != nil {
				return removed, fmt.Errorf("removing job %s: %w", job.ID, err)
			}
			if n > 0 {
				removed = append(removed, job)
			}
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}
	return removed, nil
}

// PauseCampaign flags a campaign so PopReady stops handing out its jobs.
// Queued jobs stay in place; nothing is re-enqueued on resume.
func (q *Queue) PauseCampaign(ctx context.Context, campaignID string) error {
	if err := q.client.SAdd(ctx, pausedKey, campaignID).Err(); err != nil {
		return fmt.Errorf("pausing campaign %s: %w", campaignID, err)
	}
	return nil
}

// ResumeCampaign clears the pause flag.
func (q *Queue) ResumeCampaign(ctx context.Context, campaignID string) error {
	if err := q.client.SRem(ctx, pausedKey, campaignID).Err(); err != nil {
		return fmt.Errorf("resuming campaign %s: %w", campaignID, err)
	}
	return nil
}

// IsPaused reports whether the campaign's dequeueing is paused.
func (q *Queue) IsPaused(ctx context.Context, campaignID string) (bool, error) {
	paused, err := q.client.SIsMember(ctx, pausedKey, campaignID).Result()
	if err != nil {
		return false, fmt.Errorf("checking pause flag: %w", err)
	}
	return paused, nil
}

// Stats returns per-state job counts.
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	now := formatScore(float64(time.Now().UnixMicro()))

	pipe := q.client.Pipeline()
	waiting := pipe.ZCount(ctx, waitingKey, "-inf", now)
	delayed := pipe.ZCount(ctx, waitingKey, "("+now, "+inf")
	active := pipe.ZCard(ctx, activeKey)
	completed := pipe.ZCard(ctx, completedKey)
	failed := pipe.ZCard(ctx, failedKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, fmt.Errorf("reading queue stats: %w", err)
	}

	return Stats{
		Waiting:   waiting.Val(),
		Delayed:   delayed.Val(),
		Active:    active.Val(),
		Completed: completed.Val(),
		Failed:    failed.Val(),
	}, nil
}

// Clean removes up to limit jobs in a terminal state older than grace and
// returns their ids. Recipient records are not touched.
func (q *Queue) Clean(ctx context.Context, grace time.Duration, limit int64, state State) ([]string, error) {
	var key string
	switch state {
	case StateCompleted:
		key = completedKey
	case StateFailed:
		key = failedKey
	default:
		return nil, fmt.Errorf("cannot clean jobs in state %q", state)
	}

	cutoff := float64(time.Now().Add(-grace).UnixMicro())
	members, err := q.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   formatScore(cutoff),
		Count: limit,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("listing %s jobs: %w", state, err)
	}

	var ids []string
	for _, member := range members {
		if err := q.client.ZRem(ctx, key, member).Err(); err != nil {
			return ids, fmt.Errorf("removing %s job: %w", state, err)
		}
		var job Job
		if err := json.Unmarshal([]byte(member), &job); err == nil {
			ids = append(ids, job.ID)
		}
	}
	return ids, nil
}

// Ping reports broker reachability and round-trip latency.
func (q *Queue) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := q.client.Ping(ctx).Err(); err != nil {
		return 0, fmt.Errorf("pinging redis: %w", err)
	}
	return time.Since(start), nil
}

func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
