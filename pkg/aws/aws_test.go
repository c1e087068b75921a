package aws

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	cwltypes "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSNS struct {
	inputs []*sns.PublishInput
	err    error
}

func (f *fakeSNS) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.inputs = append(f.inputs, in)
	return &sns.PublishOutput{}, f.err
}

func TestEventPublisher_WrapsPayloadInEnvelope(t *testing.T) {
	api := &fakeSNS{}
	p := NewEventPublisher(NewSNSClientWithAPI(api), "arn:aws:sns:us-east-1:000000000000:bundles")

	err := p.Publish(context.Background(), "bundle.ingested", map[string]int{"assetCount": 4})
	require.NoError(t, err)
	require.Len(t, api.inputs, 1)

	var env struct {
		Type    string         `json:"type"`
		Payload map[string]int `json:"payload"`
	}
	require.NoError(t, json.Unmarshal([]byte(*api.inputs[0].Message), &env))
	assert.Equal(t, "bundle.ingested", env.Type)
	assert.Equal(t, 4, env.Payload["assetCount"])
	assert.Equal(t, "bundle.ingested", *api.inputs[0].MessageAttributes["event_type"].StringValue)
}

func TestEventPublisher_NoTopicIsNoop(t *testing.T) {
	api := &fakeSNS{}
	p := NewEventPublisher(NewSNSClientWithAPI(api), "")

	require.NoError(t, p.Publish(context.Background(), "bundle.ingested", nil))
	assert.Empty(t, api.inputs)
}

func TestSNSClient_PropagatesError(t *testing.T) {
	api := &fakeSNS{err: errors.New("throttled")}
	c := NewSNSClientWithAPI(api)

	err := c.Publish(context.Background(), "arn:topic", []byte("{}"), nil)
	assert.ErrorContains(t, err, "throttled")
}

type fakeCloudWatch struct {
	inputs []*cloudwatch.PutMetricDataInput
}

func (f *fakeCloudWatch) PutMetricData(_ context.Context, in *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	f.inputs = append(f.inputs, in)
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func TestMetricsClient_DisabledDropsData(t *testing.T) {
	api := &fakeCloudWatch{}
	m := NewMetricsClientWithAPI(api, "", false)

	require.NoError(t, m.RecordCount(context.Background(), MetricHTTPRequests, nil))
	m.RunFinished("complete")
	assert.Empty(t, api.inputs)
	assert.False(t, m.IsEnabled())
}

func TestMetricsClient_RunOutcomes(t *testing.T) {
	api := &fakeCloudWatch{}
	m := NewMetricsClientWithAPI(api, "Test", true)

	m.RunFinished("complete")
	m.RunFinished("failed")
	m.RollbackFinished(2)

	require.Len(t, api.inputs, 3)
	assert.Equal(t, "Test", *api.inputs[0].Namespace)
	assert.Equal(t, MetricBundlesIngested, *api.inputs[0].MetricData[0].MetricName)
	assert.Equal(t, MetricBundlesFailed, *api.inputs[1].MetricData[0].MetricName)
	assert.Equal(t, 2.0, *api.inputs[2].MetricData[0].Value)
}

type fakeLogs struct {
	groupErr error
	events   [][]cwltypes.InputLogEvent
	tokens   []*string
}

func (f *fakeLogs) CreateLogGroup(context.Context, *cloudwatchlogs.CreateLogGroupInput, ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogGroupOutput, error) {
	return &cloudwatchlogs.CreateLogGroupOutput{}, f.groupErr
}

func (f *fakeLogs) PutRetentionPolicy(context.Context, *cloudwatchlogs.PutRetentionPolicyInput, ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutRetentionPolicyOutput, error) {
	return &cloudwatchlogs.PutRetentionPolicyOutput{}, nil
}

func (f *fakeLogs) CreateLogStream(context.Context, *cloudwatchlogs.CreateLogStreamInput, ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogStreamOutput, error) {
	return &cloudwatchlogs.CreateLogStreamOutput{}, nil
}

func (f *fakeLogs) PutLogEvents(_ context.Context, in *cloudwatchlogs.PutLogEventsInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutLogEventsOutput, error) {
	f.events = append(f.events, in.LogEvents)
	f.tokens = append(f.tokens, in.SequenceToken)
	return &cloudwatchlogs.PutLogEventsOutput{NextSequenceToken: sdkaws.String("next")}, nil
}

func TestCloudWatchLogsClient_WriteShipsLines(t *testing.T) {
	api := &fakeLogs{groupErr: &cwltypes.ResourceAlreadyExistsException{}}
	c, err := NewCloudWatchLogsClientWithAPI(context.Background(), api, "", "ingest-service", true)
	require.NoError(t, err)

	n, err := c.Write([]byte("first"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	_, _ = c.Write([]byte("second"))

	require.Len(t, api.events, 2)
	assert.Equal(t, "second", *api.events[1][0].Message)
	assert.Nil(t, api.tokens[0])
	assert.Equal(t, "next", *api.tokens[1])
}

func TestCloudWatchLogsClient_DisabledSkipsSetup(t *testing.T) {
	api := &fakeLogs{groupErr: errors.New("should not be called")}
	c, err := NewCloudWatchLogsClientWithAPI(context.Background(), api, "", "svc", false)
	require.NoError(t, err)

	_, _ = c.Write([]byte("ignored"))
	assert.Empty(t, api.events)
}

type fakeSecrets struct {
	calls int
}

func (f *fakeSecrets) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.calls++
	if *in.SecretId == "missing" {
		return nil, errors.New("ResourceNotFoundException")
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: sdkaws.String("s3cr3t")}, nil
}

func TestSecretsClient_CachesValues(t *testing.T) {
	api := &fakeSecrets{}
	s := NewSecretsClientWithAPI(api)

	for i := 0; i < 3; i++ {
		v, err := s.GetSecret(context.Background(), "jwt")
		require.NoError(t, err)
		assert.Equal(t, "s3cr3t", v)
	}
	assert.Equal(t, 1, api.calls)

	_, err := s.GetSecret(context.Background(), "missing")
	assert.Error(t, err)
}
