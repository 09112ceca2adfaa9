// Copyright (c) 2025, The Bitte Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package inventory

import (
	"context"
	stderrors "errors"
	"net/netip"
	"sync/atomic"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	astypes "github.com/aws/aws-sdk-go-v2/service/autoscaling/types"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitte-ops/bitte/pkg/errors"
)

type mockEC2 struct {
	pages  []*ec2.DescribeInstancesOutput
	byID   map[string]ec2types.Instance
	err    error
	inputs []*ec2.DescribeInstancesInput
}

func (m *mockEC2) DescribeInstances(_ context.Context, in *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	m.inputs = append(m.inputs, in)
	if m.err != nil {
		return nil, m.err
	}
	if len(in.InstanceIds) > 0 {
		out := &ec2.DescribeInstancesOutput{}
		for _, id := range in.InstanceIds {
			if inst, ok := m.byID[id]; ok {
				out.Reservations = append(out.Reservations, ec2types.Reservation{Instances: []ec2types.Instance{inst}})
			}
		}
		return out, nil
	}
	page := 0
	if in.NextToken != nil {
		page = 1
	}
	return m.pages[page], nil
}

type mockAutoscaling struct {
	groups map[string][]string
}

func (m *mockAutoscaling) DescribeAutoScalingGroups(_ context.Context, in *autoscaling.DescribeAutoScalingGroupsInput, _ ...func(*autoscaling.Options)) (*autoscaling.DescribeAutoScalingGroupsOutput, error) {
	out := &autoscaling.DescribeAutoScalingGroupsOutput{}
	for _, name := range in.AutoScalingGroupNames {
		ids, ok := m.groups[name]
		if !ok {
			continue
		}
		g := astypes.AutoScalingGroup{AutoScalingGroupName: aws.String(name)}
		for _, id := range ids {
			g.Instances = append(g.Instances, astypes.Instance{InstanceId: aws.String(id)})
		}
		out.AutoScalingGroups = append(out.AutoScalingGroups, g)
	}
	return out, nil
}

func ec2Instance(id, name, priv, pub string) ec2types.Instance {
	in := ec2types.Instance{
		InstanceId:       aws.String(id),
		PrivateIpAddress: aws.String(priv),
		Tags: []ec2types.Tag{
			{Key: aws.String(TagCluster), Value: aws.String("prod")},
			{Key: aws.String(TagUID), Value: aws.String("prod-" + id)},
		},
	}
	if pub != "" {
		in.PublicIpAddress = aws.String(pub)
	}
	if name != "" {
		in.Tags = append(in.Tags, ec2types.Tag{Key: aws.String(TagName), Value: aws.String(name)})
	}
	return in
}

func staticFactory(c *RegionClients, calls *atomic.Int32) ClientFactory {
	return func(context.Context, string) (*RegionClients, error) {
		calls.Add(1)
		return c, nil
	}
}

func TestFromEC2(t *testing.T) {
	got := FromEC2(ec2Instance("i-1", "core-1", "10.0.0.1", "3.1.1.1"))

	assert.Equal(t, "i-1", got.ID)
	assert.Equal(t, "core-1", got.Name)
	assert.Equal(t, "prod-i-1", got.UID)
	assert.Equal(t, netip.MustParseAddr("10.0.0.1"), got.PrivateIP)
	assert.Equal(t, netip.MustParseAddr("3.1.1.1"), got.PublicIP)

	bare := FromEC2(ec2types.Instance{InstanceId: aws.String("i-2")})
	assert.False(t, bare.PrivateIP.IsValid())
	assert.Empty(t, bare.Name)
}

func TestAWS_RunningInstances(t *testing.T) {
	ec2c := &mockEC2{pages: []*ec2.DescribeInstancesOutput{
		{
			Reservations: []ec2types.Reservation{{Instances: []ec2types.Instance{ec2Instance("i-1", "", "10.0.0.1", "")}}},
			NextToken:    aws.String("page-2"),
		},
		{
			Reservations: []ec2types.Reservation{{Instances: []ec2types.Instance{ec2Instance("i-2", "core-1", "10.0.0.2", "")}}},
		},
	}}
	var calls atomic.Int32
	a := NewAWS(WithClientFactory(staticFactory(&RegionClients{EC2: ec2c}, &calls)))

	got, err := a.RunningInstances(context.Background(), "eu-central-1", "prod")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "i-1", got[0].ID)
	assert.Equal(t, "core-1", got[1].Name)

	require.NotEmpty(t, ec2c.inputs)
	filters := ec2c.inputs[0].Filters
	require.Len(t, filters, 2)
	assert.Equal(t, "tag:Cluster", aws.ToString(filters[0].Name))
	assert.Equal(t, []string{"prod"}, filters[0].Values)
	assert.Equal(t, "instance-state-name", aws.ToString(filters[1].Name))
	assert.Equal(t, []string{"running"}, filters[1].Values)

	_, err = a.RunningInstances(context.Background(), "eu-central-1", "prod")
	require.NoError(t, err)
	assert.EqualValues(t, 1, calls.Load(), "region clients are reused")
}

func TestAWS_RunningInstancesError(t *testing.T) {
	var calls atomic.Int32
	a := NewAWS(WithClientFactory(staticFactory(&RegionClients{EC2: &mockEC2{err: stderrors.New("throttled")}}, &calls)))

	_, err := a.RunningInstances(context.Background(), "us-east-2", "prod")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnavailable))

	var se *errors.StructuredError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "inventory/us-east-2", se.Context["source"])
}

func TestAWS_FactoryError(t *testing.T) {
	a := NewAWS(WithClientFactory(func(context.Context, string) (*RegionClients, error) {
		return nil, errors.New(errors.ErrCodeConfiguration, "no credentials")
	}))

	_, err := a.RunningInstances(context.Background(), "eu-west-1", "prod")
	assert.True(t, errors.IsCode(err, errors.ErrCodeConfiguration))
}

func TestAWS_GroupInstancesAndDescribe(t *testing.T) {
	rc := &RegionClients{
		EC2: &mockEC2{byID: map[string]ec2types.Instance{
			"i-a": ec2Instance("i-a", "", "10.0.1.1", "3.2.2.2"),
		}},
		Autoscaling: &mockAutoscaling{groups: map[string][]string{
			"client-eu-central-1": {"i-a", "i-b"},
		}},
	}
	var calls atomic.Int32
	a := NewAWS(WithClientFactory(staticFactory(rc, &calls)))
	ctx := context.Background()

	arn := "arn:aws:autoscaling:eu-central-1:123456789012:autoScalingGroup:abcd:autoScalingGroupName/client-eu-central-1"
	ids, err := a.GroupInstances(ctx, "eu-central-1", arn)
	require.NoError(t, err)
	assert.Equal(t, []string{"i-a", "i-b"}, ids)

	inst, err := a.DescribeInstance(ctx, "eu-central-1", "i-a")
	require.NoError(t, err)
	assert.Equal(t, netip.MustParseAddr("3.2.2.2"), inst.PublicIP)

	_, err = a.DescribeInstance(ctx, "eu-central-1", "i-b")
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound))
}

func TestGroupName(t *testing.T) {
	tests := []struct {
		name    string
		arn     string
		want    string
		wantErr bool
	}{
		{"full arn", "arn:aws:autoscaling:us-east-2:1:autoScalingGroup:u:autoScalingGroupName/client-a", "client-a", false},
		{"no marker", "client-a", "", true},
		{"empty name", "arn:aws:autoscaling:us-east-2:1:autoScalingGroup:u:autoScalingGroupName/", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GroupName(tt.arn)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
